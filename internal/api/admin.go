package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/and161185/exam-client/internal/model"
)

// AdminUsers lists every account.
func (g *Gateway) AdminUsers(ctx context.Context) ([]model.User, error) {
	var out []model.User
	if err := g.Do(ctx, "/admin/users", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AdminUpdateUser patches an account.
func (g *Gateway) AdminUpdateUser(ctx context.Context, id string, p model.UserPatch) error {
	return g.Do(ctx, "/admin/users/"+url.PathEscape(id), nil, WithMethod(http.MethodPatch), WithJSON(p))
}

// AdminDeleteUser removes an account.
func (g *Gateway) AdminDeleteUser(ctx context.Context, id string) error {
	return g.Do(ctx, "/admin/users/"+url.PathEscape(id), nil, WithMethod(http.MethodDelete))
}

// AdminBanks lists banks of all users.
func (g *Gateway) AdminBanks(ctx context.Context) ([]model.QuestionBank, error) {
	var out []model.QuestionBank
	if err := g.Do(ctx, "/admin/question-banks", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AdminDeleteBank removes any user's bank.
func (g *Gateway) AdminDeleteBank(ctx context.Context, id string) error {
	return g.Do(ctx, "/admin/question-banks/"+url.PathEscape(id), nil, WithMethod(http.MethodDelete))
}

// AdminStats returns system-wide counters.
func (g *Gateway) AdminStats(ctx context.Context) (*model.AdminStats, error) {
	var out model.AdminStats
	if err := g.Do(ctx, "/admin/stats", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdminSettings returns system settings.
func (g *Gateway) AdminSettings(ctx context.Context) (model.Settings, error) {
	out := model.Settings{}
	if err := g.Do(ctx, "/admin/settings", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AdminUpdateSettings replaces system settings.
func (g *Gateway) AdminUpdateSettings(ctx context.Context, s model.Settings) error {
	return g.Do(ctx, "/admin/settings", nil, WithMethod(http.MethodPut), WithJSON(s))
}
