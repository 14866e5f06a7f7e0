package section

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/hitoshi/newsdesk/internal/lifecycle"
	"github.com/hitoshi/newsdesk/internal/model"
	"github.com/hitoshi/newsdesk/internal/repository"
)

var (
	reporter = model.Caller{ID: "rep-1", DisplayName: "Rita", Role: model.RoleReporter}
	editor   = model.Caller{ID: "ed-1", DisplayName: "Eva", Role: model.RoleEditor}
)

func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := repository.OpenLocalStore(":memory:")
	if err != nil {
		t.Fatalf("OpenLocalStore returned error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewService(store, lifecycle.NewEngine(nil))
}

// mockStore は全操作がバックエンド障害になるストレージ。
type mockStore struct {
	repository.Store
	err error
}

func (m *mockStore) SelectAll(_ context.Context, _ repository.Table) ([]repository.Record, error) {
	return nil, m.err
}

func (m *mockStore) Insert(_ context.Context, _ repository.Table, _ repository.Record) (repository.Record, error) {
	return nil, m.err
}

// TestCreateSection_Scenario はreporterは拒否され、editorは指定どおりのセクションを作成できることを検証する。
func TestCreateSection_Scenario(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	fields := model.SectionFields{Name: "Deportes", Order: intPtr(2), Active: true}

	_, err := svc.CreateSection(ctx, reporter, fields)
	if !model.IsCode(err, model.ErrCodeForbidden) {
		t.Fatalf("reporter: error = %v, want FORBIDDEN", err)
	}
	if all, _ := svc.ListSections(ctx); len(all) != 0 {
		t.Fatalf("forbidden create must not persist, got %d sections", len(all))
	}

	got, err := svc.CreateSection(ctx, editor, fields)
	if err != nil {
		t.Fatalf("editor: unexpected error %v", err)
	}
	if got.ID == "" {
		t.Error("expected newly assigned id")
	}
	want := model.Section{ID: got.ID, Name: "Deportes", Order: 2, Active: true}
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("created section mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateSection_DefaultOrderIsCountPlusOne(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, name := range []string{"A", "B"} {
		if _, err := svc.CreateSection(ctx, editor, model.SectionFields{Name: name, Active: true}); err != nil {
			t.Fatalf("CreateSection(%s) returned error: %v", name, err)
		}
	}
	third, err := svc.CreateSection(ctx, editor, model.SectionFields{Name: "C"})
	if err != nil {
		t.Fatalf("CreateSection returned error: %v", err)
	}
	if third.Order != 3 {
		t.Errorf("Order = %d, want 3", third.Order)
	}
}

func TestCreateSection_AcceptsDuplicateNames(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateSection(ctx, editor, model.SectionFields{Name: "Cultura", Active: true})
	if err != nil {
		t.Fatalf("first create returned error: %v", err)
	}
	b, err := svc.CreateSection(ctx, editor, model.SectionFields{Name: "Cultura", Active: true})
	if err != nil {
		t.Fatalf("duplicate create returned error: %v", err)
	}
	if a.ID == b.ID {
		t.Error("duplicate sections must have distinct ids")
	}
}

func TestCreateSection_Validation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for name, fields := range map[string]model.SectionFields{
		"空の名前":  {Name: "   "},
		"0の表示順": {Name: "X", Order: intPtr(0)},
		"負の表示順": {Name: "X", Order: intPtr(-1)},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateSection(ctx, editor, fields)
			if !model.IsCode(err, model.ErrCodeValidationFailed) {
				t.Errorf("error = %v, want VALIDATION_FAILED", err)
			}
		})
	}
}

func TestListSections_OrderedByOrderThenName(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, f := range []model.SectionFields{
		{Name: "Economía", Order: intPtr(5), Active: true},
		{Name: "Tecnología", Order: intPtr(1), Active: true},
		{Name: "Deportes", Order: intPtr(2), Active: false},
		{Name: "Cultura", Order: intPtr(2), Active: true},
	} {
		if _, err := svc.CreateSection(ctx, editor, f); err != nil {
			t.Fatalf("CreateSection returned error: %v", err)
		}
	}

	all, err := svc.ListSections(ctx)
	if err != nil {
		t.Fatalf("ListSections returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"Tecnología", "Cultura", "Deportes", "Economía"}, names(all)); diff != "" {
		t.Errorf("ListSections order mismatch (-want +got):\n%s", diff)
	}

	active, err := svc.ListActiveSections(ctx)
	if err != nil {
		t.Fatalf("ListActiveSections returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"Tecnología", "Cultura", "Economía"}, names(active)); diff != "" {
		t.Errorf("ListActiveSections mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateSection(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateSection(ctx, editor, model.SectionFields{Name: "Politica", Description: "d", Order: intPtr(3), Active: true})
	if err != nil {
		t.Fatalf("CreateSection returned error: %v", err)
	}

	if _, err := svc.UpdateSection(ctx, reporter, created.ID, model.SectionPatch{Active: boolPtr(false)}); !model.IsCode(err, model.ErrCodeForbidden) {
		t.Errorf("reporter: error = %v, want FORBIDDEN", err)
	}

	got, err := svc.UpdateSection(ctx, editor, created.ID, model.SectionPatch{Name: strPtr("Política"), Active: boolPtr(false)})
	if err != nil {
		t.Fatalf("UpdateSection returned error: %v", err)
	}
	want := model.Section{ID: created.ID, Name: "Política", Description: "d", Order: 3, Active: false}
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("updated section mismatch (-want +got):\n%s", diff)
	}

	if _, err := svc.UpdateSection(ctx, editor, "missing", model.SectionPatch{Active: boolPtr(true)}); !model.IsCode(err, model.ErrCodeNotFound) {
		t.Errorf("missing: error = %v, want NOT_FOUND", err)
	}
	if _, err := svc.UpdateSection(ctx, editor, created.ID, model.SectionPatch{Order: intPtr(0)}); !model.IsCode(err, model.ErrCodeValidationFailed) {
		t.Errorf("zero order: error = %v, want VALIDATION_FAILED", err)
	}
}

func TestDeleteSection(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateSection(ctx, editor, model.SectionFields{Name: "Cultura", Active: true})
	if err != nil {
		t.Fatalf("CreateSection returned error: %v", err)
	}

	if err := svc.DeleteSection(ctx, reporter, created.ID); !model.IsCode(err, model.ErrCodeForbidden) {
		t.Errorf("reporter: error = %v, want FORBIDDEN", err)
	}
	if err := svc.DeleteSection(ctx, editor, created.ID); err != nil {
		t.Fatalf("editor: unexpected error %v", err)
	}
	if err := svc.DeleteSection(ctx, editor, created.ID); !model.IsCode(err, model.ErrCodeNotFound) {
		t.Errorf("second delete: error = %v, want NOT_FOUND", err)
	}
}

func TestSeedDefaults(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	n, err := svc.SeedDefaults(ctx)
	if err != nil {
		t.Fatalf("SeedDefaults returned error: %v", err)
	}
	if n != 5 {
		t.Errorf("seeded %d sections, want 5", n)
	}

	all, _ := svc.ListSections(ctx)
	want := []model.Section{
		{Name: "Tecnología", Description: "Noticias sobre tecnología e innovación", Order: 1, Active: true},
		{Name: "Deportes", Description: "Noticias deportivas", Order: 2, Active: true},
		{Name: "Política", Description: "Noticias políticas y gubernamentales", Order: 3, Active: true},
		{Name: "Cultura", Description: "Arte, música y entretenimiento", Order: 4, Active: true},
		{Name: "Economía", Description: "Noticias económicas y financieras", Order: 5, Active: true},
	}
	if diff := cmp.Diff(want, all, cmpopts.IgnoreFields(model.Section{}, "ID")); diff != "" {
		t.Errorf("seeded sections mismatch (-want +got):\n%s", diff)
	}

	// 2回目は何もしない
	n, err = svc.SeedDefaults(ctx)
	if err != nil || n != 0 {
		t.Errorf("second SeedDefaults = (%d, %v), want (0, nil)", n, err)
	}
}

func TestStoreUnavailable(t *testing.T) {
	cause := errors.New("disk I/O error")
	svc := NewService(&mockStore{err: errors.Join(repository.ErrUnavailable, cause)}, lifecycle.NewEngine(nil))

	_, err := svc.ListSections(context.Background())
	if !model.IsCode(err, model.ErrCodeStoreUnavailable) || !errors.Is(err, cause) {
		t.Errorf("ListSections error = %v, want STORE_UNAVAILABLE wrapping cause", err)
	}
	_, err = svc.CreateSection(context.Background(), editor, model.SectionFields{Name: "X", Order: intPtr(1)})
	if !model.IsCode(err, model.ErrCodeStoreUnavailable) {
		t.Errorf("CreateSection error = %v, want STORE_UNAVAILABLE", err)
	}
}

func names(sections []model.Section) []string {
	out := make([]string, len(sections))
	for i, s := range sections {
		out[i] = s.Name
	}
	return out
}
