package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPTranslator calls a JSON translation gateway:
//
//	POST {url} {"text": "...", "target": "en"}
//	200 {"translatedText": "...", "detectedSourceLanguage": "ja"}
type HTTPTranslator struct {
	url    string
	client *http.Client
}

type gatewayRequest struct {
	Text   string `json:"text"`
	Target string `json:"target,omitempty"`
}

type gatewayResponse struct {
	TranslatedText         string `json:"translatedText"`
	DetectedSourceLanguage string `json:"detectedSourceLanguage,omitempty"`
}

// NewHTTPTranslator creates a gateway client. A non-positive timeout falls
// back to 15 seconds.
func NewHTTPTranslator(url string, timeout time.Duration) *HTTPTranslator {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPTranslator{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: timeout},
	}
}

// Translate implements Translator.
func (t *HTTPTranslator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	if t.url == "" {
		return "", fmt.Errorf("translation gateway url is not configured")
	}

	body, err := json.Marshal(gatewayRequest{Text: text, Target: targetLang})
	if err != nil {
		return "", fmt.Errorf("marshal translation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build translation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("translation gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read translation response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(respBytes))}
	}

	var parsed gatewayResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return "", fmt.Errorf("decode translation response: %w", err)
	}
	return parsed.TranslatedText, nil
}
