package filemanager

// Authorizer is the external permission callback. Both methods receive the
// absolute path of the item.
type Authorizer interface {
	HasReadPermission(path string) bool
	HasWritePermission(path string) bool
}

// AuthorizerFuncs adapts two functions to an Authorizer. A nil function
// allows.
type AuthorizerFuncs struct {
	Read  func(path string) bool
	Write func(path string) bool
}

func (f AuthorizerFuncs) HasReadPermission(path string) bool {
	return f.Read == nil || f.Read(path)
}

func (f AuthorizerFuncs) HasWritePermission(path string) bool {
	return f.Write == nil || f.Write(path)
}

// SystemPermissions is implemented by backends to report OS level access.
type SystemPermissions interface {
	HasSystemReadPermission(path string) bool
	HasSystemWritePermission(path string) bool
}

// PermissionChecker combines the read-only flag, backend permissions and
// the optional authorizer.
type PermissionChecker struct {
	ReadOnly   bool
	System     SystemPermissions
	Authorizer Authorizer
}

// CanRead reports whether an item at path may be read.
func (c *PermissionChecker) CanRead(path string, exists bool) bool {
	if !exists {
		return false
	}
	return c.CheckRead(path) == nil
}

// CanWrite reports whether an item at path may be modified.
func (c *PermissionChecker) CanWrite(path string, exists bool) bool {
	if !exists {
		return false
	}
	return c.CheckWrite(path) == nil
}

// CheckRead asserts read access. It does not check existence.
func (c *PermissionChecker) CheckRead(path string) error {
	if c.System != nil && !c.System.HasSystemReadPermission(path) {
		return NewPathError("read", path, LabelNotAllowedSystem, ErrSystemPermission)
	}
	if c.Authorizer != nil && !c.Authorizer.HasReadPermission(path) {
		return NewPathError("read", path, LabelNotAllowed, ErrNotAuthorized)
	}
	return nil
}

// CheckWrite asserts write access. It does not check existence.
func (c *PermissionChecker) CheckWrite(path string) error {
	if c.ReadOnly {
		return NewPathError("write", path, LabelNotAllowed, ErrReadOnly)
	}
	if c.System != nil && !c.System.HasSystemWritePermission(path) {
		return NewPathError("write", path, LabelNotAllowedSystem, ErrSystemPermission)
	}
	if c.Authorizer != nil && !c.Authorizer.HasWritePermission(path) {
		return NewPathError("write", path, LabelNotAllowed, ErrNotAuthorized)
	}
	return nil
}
