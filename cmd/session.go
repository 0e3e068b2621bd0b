package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// savedSession is the login session kept between CLI runs. Only the session cookie is stored; access
// tokens are fetched from the server on every run.
type savedSession struct {
	Server  string        `json:"server"`
	Cookies []savedCookie `json:"cookies"`
	SavedAt time.Time     `json:"savedAt"`
}

type savedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Expires time.Time `json:"expires,omitzero"`
}

// saveSession writes the server's cookies to path, readable by the owner only.
func saveSession(path, server string, cookies []*http.Cookie, now time.Time) error {
	session := savedSession{Server: server, SavedAt: now.UTC()}
	for _, c := range cookies {
		session.Cookies = append(session.Cookies, savedCookie{Name: c.Name, Value: c.Value, Expires: c.Expires})
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// loadSession reads the cookies saved for server. A missing file or a session saved for another server
// yields no cookies.
func loadSession(path, server string) ([]*http.Cookie, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session savedSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	if session.Server != server {
		return nil, nil
	}

	cookies := make([]*http.Cookie, 0, len(session.Cookies))
	for _, c := range session.Cookies {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/", Expires: c.Expires})
	}
	return cookies, nil
}

func clearSession(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
