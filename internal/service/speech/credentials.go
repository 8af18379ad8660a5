package speech

import (
	"errors"
	"net/http"
	"strings"

	speechmodel "github.com/zhouzirui/language-partner/backend/internal/model/speech"
)

// ErrMissingCredentials 表示缺少 AppID 或 AccessToken。
var ErrMissingCredentials = errors.New("volcengine speech config requires AppID and AccessToken")

type credentials struct {
	appID string
	token string
}

func loadCredentials(cfg *speechmodel.SpeechConfig) (credentials, error) {
	if cfg == nil {
		return credentials{}, ErrMissingCredentials
	}

	c := credentials{
		appID: strings.TrimSpace(cfg.AppID),
		token: strings.TrimSpace(cfg.AccessToken),
	}
	if c.token == "" {
		c.token = strings.TrimSpace(cfg.APIKey)
	}
	if c.appID == "" || c.token == "" {
		return credentials{}, ErrMissingCredentials
	}
	return c, nil
}

// header builds the openspeech v3 handshake headers.
func (c credentials) header(resourceID, connectID string) http.Header {
	h := http.Header{}
	h.Set("X-Api-App-Key", c.appID)
	h.Set("X-Api-Access-Key", c.token)
	h.Set("X-Api-Resource-Id", resourceID)
	h.Set("X-Api-Connect-Id", connectID)
	return h
}
