package stream

import "sync"

// Disposable cancels a subscription or a started producer.
type Disposable interface {
	Dispose()
	IsDisposed() bool
}

type disposable struct {
	mu       sync.Mutex
	fn       func()
	disposed bool
}

// NewDisposable returns a Disposable running fn on the first Dispose call.
func NewDisposable(fn func()) Disposable {
	return &disposable{fn: fn}
}

func (d *disposable) Dispose() {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return
	}
	d.disposed = true
	fn := d.fn
	d.fn = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (d *disposable) IsDisposed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disposed
}

// Composite disposes a set of disposables together. Adding to a
// disposed composite disposes the addition immediately.
type Composite struct {
	mu       sync.Mutex
	items    []Disposable
	disposed bool
}

func (c *Composite) Add(d Disposable) {
	if d == nil {
		return
	}
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		d.Dispose()
		return
	}
	c.items = append(c.items, d)
	c.mu.Unlock()
}

func (c *Composite) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	items := c.items
	c.items = nil
	c.mu.Unlock()

	for _, d := range items {
		d.Dispose()
	}
}

func (c *Composite) IsDisposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}
