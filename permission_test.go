package filemanager

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type systemStub struct {
	read, write bool
}

func (s systemStub) HasSystemReadPermission(string) bool  { return s.read }
func (s systemStub) HasSystemWritePermission(string) bool { return s.write }

func TestPermissionChecker(t *testing.T) {
	denyPrivate := AuthorizerFuncs{
		Read:  func(p string) bool { return !strings.Contains(p, "/private/") },
		Write: func(p string) bool { return !strings.Contains(p, "/locked/") },
	}

	tests := []struct {
		name      string
		checker   PermissionChecker
		path      string
		readErr   error
		writeErr  error
		readLabel string
	}{
		{
			name:    "open",
			checker: PermissionChecker{System: systemStub{true, true}},
			path:    "/root/a.txt",
		},
		{
			name:     "read only",
			checker:  PermissionChecker{ReadOnly: true, System: systemStub{true, true}},
			path:     "/root/a.txt",
			writeErr: ErrReadOnly,
		},
		{
			name:      "system denies",
			checker:   PermissionChecker{System: systemStub{false, false}},
			path:      "/root/a.txt",
			readErr:   ErrSystemPermission,
			writeErr:  ErrSystemPermission,
			readLabel: LabelNotAllowedSystem,
		},
		{
			name:      "authorizer denies read",
			checker:   PermissionChecker{System: systemStub{true, true}, Authorizer: denyPrivate},
			path:      "/root/private/a.txt",
			readErr:   ErrNotAuthorized,
			readLabel: LabelNotAllowed,
		},
		{
			name:     "authorizer denies write",
			checker:  PermissionChecker{Authorizer: denyPrivate},
			path:     "/root/locked/a.txt",
			writeErr: ErrNotAuthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.checker.CheckRead(tt.path)
			if tt.readErr == nil {
				require.NoError(t, err)
				assert.True(t, tt.checker.CanRead(tt.path, true))
			} else {
				require.ErrorIs(t, err, tt.readErr)
				assert.True(t, IsForbidden(err))
				assert.Equal(t, tt.readLabel, LabelOf(err))
				assert.False(t, tt.checker.CanRead(tt.path, true))
			}

			err = tt.checker.CheckWrite(tt.path)
			if tt.writeErr == nil {
				require.NoError(t, err)
				assert.True(t, tt.checker.CanWrite(tt.path, true))
			} else {
				require.ErrorIs(t, err, tt.writeErr)
				assert.False(t, tt.checker.CanWrite(tt.path, true))
			}

			assert.False(t, tt.checker.CanRead(tt.path, false), "missing items are never readable")
			assert.False(t, tt.checker.CanWrite(tt.path, false), "missing items are never writable")
		})
	}
}

func TestAuthorizerFuncs_NilAllows(t *testing.T) {
	var f AuthorizerFuncs
	assert.True(t, f.HasReadPermission("/a"))
	assert.True(t, f.HasWritePermission("/a"))
}
