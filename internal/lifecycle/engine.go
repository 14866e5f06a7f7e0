// Package lifecycle は記事の状態遷移表とロールごとの権限表を持ち、
// 記事に対するすべての操作の可否を判定する。
package lifecycle

import (
	"github.com/hitoshi/newsdesk/internal/model"
)

// Action は権限表のキーとなる操作。
type Action string

const (
	ActionCreate        Action = "create"
	ActionSubmit        Action = "submit"    // Draft → Ready
	ActionPublish       Action = "publish"   // Ready → Published
	ActionDisable       Action = "disable"   // Published → Disabled
	ActionRepublish     Action = "republish" // Disabled → Published
	ActionDelete        Action = "delete"
	ActionEditDraft     Action = "edit_draft"     // Draft/Ready中の本文編集
	ActionEditPublished Action = "edit_published" // Published/Disabled中の本文編集

	ActionManageSections Action = "manage_sections"
)

type roleSet map[model.Role]bool

type edge struct {
	from model.ArticleStatus
	to   model.ArticleStatus
}

// transitions は状態遷移表。ここにない組み合わせ（自己遷移を含む）はすべて不正な遷移。
var transitions = map[edge]Action{
	{model.StatusDraft, model.StatusReady}:        ActionSubmit,
	{model.StatusReady, model.StatusPublished}:    ActionPublish,
	{model.StatusPublished, model.StatusDisabled}: ActionDisable,
	{model.StatusDisabled, model.StatusPublished}: ActionRepublish,
}

// capabilities は操作ごとに許可されるロール。
var capabilities = map[Action]roleSet{
	ActionCreate:        {model.RoleReporter: true, model.RoleEditor: true},
	ActionSubmit:        {model.RoleReporter: true, model.RoleEditor: true},
	ActionPublish:       {model.RoleEditor: true},
	ActionDisable:       {model.RoleEditor: true},
	ActionRepublish:     {model.RoleEditor: true},
	ActionDelete:        {model.RoleEditor: true},
	ActionEditDraft:     {model.RoleReporter: true, model.RoleEditor: true},
	ActionEditPublished: {model.RoleEditor: true},

	ActionManageSections: {model.RoleEditor: true},
}

// DenialRecorder は拒否された判定を記録する。metrics.Collectorが実装する。
type DenialRecorder interface {
	RecordAuthorizationDenied(code string)
}

// Engine は状態遷移と権限を判定する。状態を持たず、並行に使用できる。
type Engine struct {
	recorder DenialRecorder
}

// NewEngine はEngineを生成する。recorderはnilでもよい。
func NewEngine(recorder DenialRecorder) *Engine {
	return &Engine{recorder: recorder}
}

// Authorize は呼び出し元が記事に対して操作を行えるかを判定する。
// articleは作成時のみnil。判定順は (1) 未定義ロール (2) reporterの所有者不一致 (3) ロールの権限。
func (e *Engine) Authorize(caller model.Caller, article *model.Article, action Action) error {
	if err := e.checkSubject(caller, article); err != nil {
		return err
	}
	if !capabilities[action][caller.Role] {
		return e.deny(model.NewForbiddenError(string(caller.Role) + " cannot " + string(action)))
	}
	return nil
}

// CheckTransition は記事を現在の状態からtoへ遷移できるかを判定する。
// 遷移表にない組み合わせは、ロールにかかわらずInvalidTransitionになる。
func (e *Engine) CheckTransition(caller model.Caller, article *model.Article, to model.ArticleStatus) error {
	if err := e.checkSubject(caller, article); err != nil {
		return err
	}
	action, ok := transitions[edge{article.Status, to}]
	if !ok {
		return e.deny(model.NewInvalidTransitionError(article.Status, to))
	}
	return e.Authorize(caller, article, action)
}

// CheckEdit は記事の本文系フィールドを編集できるかを判定する。
func (e *Engine) CheckEdit(caller model.Caller, article *model.Article) error {
	return e.Authorize(caller, article, editAction(article.Status))
}

// CheckDelete は記事を削除できるかを判定する。
func (e *Engine) CheckDelete(caller model.Caller, article *model.Article) error {
	return e.Authorize(caller, article, ActionDelete)
}

// CheckCreate は記事を作成できるかを判定する。
func (e *Engine) CheckCreate(caller model.Caller) error {
	return e.Authorize(caller, nil, ActionCreate)
}

// CheckManageSections はセクションの作成・更新・削除ができるかを判定する。
func (e *Engine) CheckManageSections(caller model.Caller) error {
	return e.Authorize(caller, nil, ActionManageSections)
}

// AllowedTransitions は呼び出し元が記事に対して実行できる遷移先の一覧を返す。
// ダッシュボードの操作ボタンの表示に使用する。拒否は記録しない。
func (e *Engine) AllowedTransitions(caller model.Caller, article *model.Article) []model.ArticleStatus {
	quiet := &Engine{}
	var allowed []model.ArticleStatus
	for _, to := range model.ArticleStatuses {
		if quiet.CheckTransition(caller, article, to) == nil {
			allowed = append(allowed, to)
		}
	}
	return allowed
}

// checkSubject は操作対象によらない前提条件を確認する。
// reporterは自分が作成した記事以外に対して一切の操作ができない。
func (e *Engine) checkSubject(caller model.Caller, article *model.Article) error {
	if !caller.Role.Valid() {
		return e.deny(model.NewForbiddenError("unknown role " + string(caller.Role)))
	}
	if article != nil && caller.Role == model.RoleReporter && article.AuthorID != caller.ID {
		return e.deny(model.NewForbiddenError("reporter can only act on own articles"))
	}
	return nil
}

func (e *Engine) deny(err *model.APIError) error {
	if e.recorder != nil {
		e.recorder.RecordAuthorizationDenied(err.Code)
	}
	return err
}

func editAction(status model.ArticleStatus) Action {
	if status == model.StatusDraft || status == model.StatusReady {
		return ActionEditDraft
	}
	return ActionEditPublished
}
