package logsvc

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/darasa/core/user"
)

func TestFields(t *testing.T) {
	err := errors.New("boom")
	usr := user.User{ID: "u1", Username: "jdoe"}

	kv := fields([]interface{}{err, map[string]interface{}{"path": "/x"}, usr, nil, 42})

	assert.Equal(t, []interface{}{
		"error", err,
		"path", "/x",
		"user_id", "u1", "username", "jdoe",
		"extra", 42,
	}, kv)
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	assert.NotPanics(t, func() {
		l.Debug("debug")
		l.Info("info", map[string]interface{}{"k": "v"})
		l.Warn("warn")
		l.Error("error", errors.New("boom"))
	})
}
