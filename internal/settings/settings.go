package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/muhammadmuzzammil1998/jsonc"

	"github.com/wonny/newsdeck/backend/internal/workspace"
	"github.com/wonny/newsdeck/backend/pkg/logger"
)

// MirrorKey is the key the settings blob is mirrored under.
const MirrorKey = "settings"

// Mirror is an optional byte store backing the settings file.
type Mirror interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetBytes(ctx context.Context, key string, data []byte) error
}

// Store reads and writes the small dashboard settings blob. The file may
// carry comments; writes are plain indented JSON.
type Store struct {
	ws     *workspace.Workspace
	name   string
	mirror Mirror
	logger *logger.Logger
	mu     sync.Mutex
}

// New creates a settings store for the file name inside ws. mirror may be nil.
func New(ws *workspace.Workspace, name string, mirror Mirror, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		ws:     ws,
		name:   name,
		mirror: mirror,
		logger: log,
	}
}

// Get returns the settings blob. A missing file yields an empty map.
func (s *Store) Get(ctx context.Context) (map[string]any, error) {
	data, err := s.ws.ReadFile(s.name)
	if errors.Is(err, fs.ErrNotExist) && s.mirror != nil {
		data, err = s.mirror.GetBytes(ctx, MirrorKey)
		if err == nil && data == nil {
			err = fs.ErrNotExist
		}
	}
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	return Decode(data)
}

// Set replaces the settings blob.
func (s *Store) Set(ctx context.Context, values map[string]any) error {
	if values == nil {
		values = map[string]any{}
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	writeErr := s.ws.WriteFile(s.name, append(data, '\n'))
	if writeErr != nil && (!errors.Is(writeErr, workspace.ErrReadOnly) || s.mirror == nil) {
		return fmt.Errorf("write settings: %w", writeErr)
	}

	if s.mirror != nil {
		if err := s.mirror.SetBytes(ctx, MirrorKey, data); err != nil {
			if writeErr != nil {
				return fmt.Errorf("mirror settings: %w", err)
			}
			s.logger.WithError(err).Warn("Failed to mirror settings")
		}
	}

	return nil
}

// Decode parses a JSONC settings document into a map.
func Decode(data []byte) (map[string]any, error) {
	values := map[string]any{}
	clean := jsonc.ToJSON(data)
	if len(clean) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(clean, &values); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	return values, nil
}
