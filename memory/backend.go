package memory

import "go.uber.org/atomic"

// Backend names, in preference order.
const (
	NameSafeBreak = "safebrk"
	NameAnon      = "anon"
	NameBreak     = "sbrk"
	NameWin32     = "win32"
	NameNative    = "native"
)

// getFunc is the per-backend acquisition function. It has the shape of
// Discipline.Memory without the owner.
type getFunc func(caddr, csize, nsize uintptr) (uintptr, error)

// Backend is one acquisition strategy available on the host.
type Backend struct {
	name string

	// flag enables the backend; zero means always enabled.
	flag Assert

	get       getFunc
	committed atomic.Uintptr
}

// Name returns the backend's name.
func (b *Backend) Name() string { return b.name }

// Flag returns the Assert bit that enables the backend, zero if none does.
func (b *Backend) Flag() Assert { return b.flag }

// Enabled reports whether a enables the backend.
func (b *Backend) Enabled(a Assert) bool { return b.flag == 0 || a&b.flag != 0 }

// Committed returns the bytes currently held through this backend.
func (b *Backend) Committed() uintptr { return b.committed.Load() }

// account updates the committed counter after a successful call.
func (b *Backend) account(csize, nsize uintptr) {
	switch {
	case nsize > csize:
		b.committed.Add(nsize - csize)
	case nsize < csize:
		b.committed.Sub(csize - nsize)
	}
}

// validRequest checks the shape every backend and the dispatcher require.
func validRequest(caddr, csize, nsize uintptr) bool {
	if csize == 0 && nsize == 0 {
		return false
	}
	return csize == 0 || caddr != 0
}

// roundUp rounds n up to a multiple of the power of two p.
func roundUp(n, p uintptr) uintptr {
	return (n + p - 1) &^ (p - 1)
}

// breakSizes applies the rules shared by the break-family backends. It
// returns the page-rounded new size, or done when the request is already
// satisfied by caddr.
func breakSizes(caddr, csize, nsize, pageSize uintptr) (rounded uintptr, done bool, err error) {
	if csize%pageSize != 0 {
		return 0, false, ErrBadRequest
	}
	if nsize == 0 {
		return 0, false, nil
	}
	rounded = roundUp(nsize, pageSize)
	if rounded < nsize {
		return 0, false, ErrBadRequest
	}
	switch {
	case rounded == csize:
		return rounded, true, nil
	case rounded < csize:
		return 0, false, ErrShrink
	}
	return rounded, false, nil
}
