// Package video выдаёт комнаты видеосвязи для подтверждённых сессий
package video

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/Freeeeeet/expert_sessions/internal/model"
	"github.com/google/uuid"
)

// Issuer выдаёт комнату с отдельными ссылками для клиента и эксперта
type Issuer interface {
	Issue(ctx context.Context, sessionID int64) (*model.VideoRoom, error)
}

// LinkIssuer строит ссылки на внешний видеосервис по базовому URL.
// Каждая сторона получает собственный токен доступа.
type LinkIssuer struct {
	baseURL string
}

func NewLinkIssuer(baseURL string) (*LinkIssuer, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid video base url %q", baseURL)
	}
	return &LinkIssuer{baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (i *LinkIssuer) Issue(ctx context.Context, sessionID int64) (*model.VideoRoom, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	roomID := uuid.NewString()
	return &model.VideoRoom{
		ID:         roomID,
		ClientLink: i.link(roomID, model.PartyClient),
		ExpertLink: i.link(roomID, model.PartyExpert),
	}, nil
}

func (i *LinkIssuer) link(roomID string, party model.Party) string {
	q := url.Values{}
	q.Set("role", string(party))
	q.Set("token", uuid.NewString())
	return fmt.Sprintf("%s/rooms/%s?%s", i.baseURL, roomID, q.Encode())
}
