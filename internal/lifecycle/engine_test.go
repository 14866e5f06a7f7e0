package lifecycle

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/newsdesk/internal/model"
)

var (
	reporter      = model.Caller{ID: "rep-1", DisplayName: "Rita", Role: model.RoleReporter}
	otherReporter = model.Caller{ID: "rep-2", DisplayName: "Rafa", Role: model.RoleReporter}
	editor        = model.Caller{ID: "ed-1", DisplayName: "Eva", Role: model.RoleEditor}
	stranger      = model.Caller{ID: "x-1", DisplayName: "X", Role: model.Role("admin")}
)

func articleIn(status model.ArticleStatus, authorID string) *model.Article {
	return &model.Article{ID: "a-1", AuthorID: authorID, Status: status}
}

// mockRecorder は拒否の記録を保持する。
type mockRecorder struct {
	codes []string
}

func (m *mockRecorder) RecordAuthorizationDenied(code string) {
	m.codes = append(m.codes, code)
}

// TestCheckTransition_Table は全状態の組み合わせと全ロールについて遷移表どおりに判定されることを検証する。
func TestCheckTransition_Table(t *testing.T) {
	// 期待値: 遷移表にない組み合わせはInvalidTransition、あればロールに応じて許可またはForbidden
	editorAllowed := map[[2]model.ArticleStatus]bool{
		{model.StatusDraft, model.StatusReady}:        true,
		{model.StatusReady, model.StatusPublished}:    true,
		{model.StatusPublished, model.StatusDisabled}: true,
		{model.StatusDisabled, model.StatusPublished}: true,
	}
	reporterAllowed := map[[2]model.ArticleStatus]bool{
		{model.StatusDraft, model.StatusReady}: true,
	}

	e := NewEngine(nil)
	for _, from := range model.ArticleStatuses {
		for _, to := range model.ArticleStatuses {
			pair := [2]model.ArticleStatus{from, to}
			inTable := editorAllowed[pair]

			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				// editor
				err := e.CheckTransition(editor, articleIn(from, reporter.ID), to)
				switch {
				case inTable && err != nil:
					t.Errorf("editor: unexpected error %v", err)
				case !inTable && !model.IsCode(err, model.ErrCodeInvalidTransition):
					t.Errorf("editor: error = %v, want INVALID_TRANSITION", err)
				}

				// 自分の記事に対するreporter
				err = e.CheckTransition(reporter, articleIn(from, reporter.ID), to)
				switch {
				case reporterAllowed[pair] && err != nil:
					t.Errorf("reporter: unexpected error %v", err)
				case !inTable && !model.IsCode(err, model.ErrCodeInvalidTransition):
					t.Errorf("reporter: error = %v, want INVALID_TRANSITION", err)
				case inTable && !reporterAllowed[pair] && !model.IsCode(err, model.ErrCodeForbidden):
					t.Errorf("reporter: error = %v, want FORBIDDEN", err)
				}

				// 他人の記事に対するreporterは遷移の妥当性より先にForbidden
				err = e.CheckTransition(otherReporter, articleIn(from, reporter.ID), to)
				if !model.IsCode(err, model.ErrCodeForbidden) {
					t.Errorf("non-owner reporter: error = %v, want FORBIDDEN", err)
				}

				// 未定義ロールは常にForbidden
				err = e.CheckTransition(stranger, articleIn(from, stranger.ID), to)
				if !model.IsCode(err, model.ErrCodeForbidden) {
					t.Errorf("unknown role: error = %v, want FORBIDDEN", err)
				}
			})
		}
	}
}

func TestCheckTransition_UnknownTargetStatusIsInvalid(t *testing.T) {
	err := NewEngine(nil).CheckTransition(editor, articleIn(model.StatusDraft, editor.ID), model.ArticleStatus("archived"))
	if !model.IsCode(err, model.ErrCodeInvalidTransition) {
		t.Errorf("error = %v, want INVALID_TRANSITION", err)
	}
}

func TestCheckEdit(t *testing.T) {
	tests := []struct {
		name    string
		caller  model.Caller
		status  model.ArticleStatus
		author  string
		wantErr string
	}{
		{"reporterは自分の下書きを編集できる", reporter, model.StatusDraft, reporter.ID, ""},
		{"reporterは自分のレビュー待ち記事を編集できる", reporter, model.StatusReady, reporter.ID, ""},
		{"reporterは自分の公開済み記事を編集できない", reporter, model.StatusPublished, reporter.ID, model.ErrCodeForbidden},
		{"reporterは自分の公開停止記事を編集できない", reporter, model.StatusDisabled, reporter.ID, model.ErrCodeForbidden},
		{"reporterは他人の下書きを編集できない", otherReporter, model.StatusDraft, reporter.ID, model.ErrCodeForbidden},
		{"editorは公開済み記事を編集できる", editor, model.StatusPublished, reporter.ID, ""},
		{"editorは公開停止記事を編集できる", editor, model.StatusDisabled, reporter.ID, ""},
		{"未定義ロールは編集できない", stranger, model.StatusDraft, stranger.ID, model.ErrCodeForbidden},
	}

	e := NewEngine(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.CheckEdit(tt.caller, articleIn(tt.status, tt.author))
			if got := model.ErrorCode(err); got != tt.wantErr {
				t.Errorf("error code = %q, want %q (err=%v)", got, tt.wantErr, err)
			}
		})
	}
}

func TestCheckDelete(t *testing.T) {
	e := NewEngine(nil)
	for _, status := range model.ArticleStatuses {
		if err := e.CheckDelete(editor, articleIn(status, reporter.ID)); err != nil {
			t.Errorf("editor delete in %s: unexpected error %v", status, err)
		}
		if err := e.CheckDelete(reporter, articleIn(status, reporter.ID)); !model.IsCode(err, model.ErrCodeForbidden) {
			t.Errorf("reporter delete own in %s: error = %v, want FORBIDDEN", status, err)
		}
	}
}

func TestCheckCreate(t *testing.T) {
	e := NewEngine(nil)
	if err := e.CheckCreate(reporter); err != nil {
		t.Errorf("reporter: unexpected error %v", err)
	}
	if err := e.CheckCreate(editor); err != nil {
		t.Errorf("editor: unexpected error %v", err)
	}
	if err := e.CheckCreate(stranger); !model.IsCode(err, model.ErrCodeForbidden) {
		t.Errorf("unknown role: error = %v, want FORBIDDEN", err)
	}
}

func TestCheckManageSections(t *testing.T) {
	e := NewEngine(nil)
	if err := e.CheckManageSections(editor); err != nil {
		t.Errorf("editor: unexpected error %v", err)
	}
	for _, c := range []model.Caller{reporter, stranger} {
		if err := e.CheckManageSections(c); !model.IsCode(err, model.ErrCodeForbidden) {
			t.Errorf("%s: error = %v, want FORBIDDEN", c.Role, err)
		}
	}
}

func TestAllowedTransitions(t *testing.T) {
	tests := []struct {
		name   string
		caller model.Caller
		status model.ArticleStatus
		want   []model.ArticleStatus
	}{
		{"reporterの下書き", reporter, model.StatusDraft, []model.ArticleStatus{model.StatusReady}},
		{"reporterのレビュー待ち", reporter, model.StatusReady, nil},
		{"他人の下書き", otherReporter, model.StatusDraft, nil},
		{"editorのレビュー待ち", editor, model.StatusReady, []model.ArticleStatus{model.StatusPublished}},
		{"editorの公開済み", editor, model.StatusPublished, []model.ArticleStatus{model.StatusDisabled}},
		{"editorの公開停止", editor, model.StatusDisabled, []model.ArticleStatus{model.StatusPublished}},
	}

	e := NewEngine(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.AllowedTransitions(tt.caller, articleIn(tt.status, reporter.ID))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("AllowedTransitions mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDenialsAreRecorded(t *testing.T) {
	rec := &mockRecorder{}
	e := NewEngine(rec)

	_ = e.CheckTransition(reporter, articleIn(model.StatusReady, reporter.ID), model.StatusPublished)
	_ = e.CheckTransition(editor, articleIn(model.StatusDraft, reporter.ID), model.StatusDraft)
	_ = e.CheckTransition(editor, articleIn(model.StatusDraft, reporter.ID), model.StatusReady)
	_ = e.AllowedTransitions(reporter, articleIn(model.StatusDraft, reporter.ID))

	want := []string{model.ErrCodeForbidden, model.ErrCodeInvalidTransition}
	if diff := cmp.Diff(want, rec.codes); diff != "" {
		t.Errorf("recorded denials mismatch (-want +got):\n%s", diff)
	}
}
