package resource

import (
	"context"
	"sync"

	"github.com/artpar/resrun/core/errs"
	"github.com/artpar/resrun/core/value"
)

// remoteBinding connects a resource to a remote one. The imported root
// carries the discovered method names and a dispatch table of forwarding
// stubs built on first use; each stub carries the method it forwards.
type remoteBinding struct {
	url     string
	client  RemoteClient
	methods []string
	method  string

	mu       sync.Mutex
	dispatch map[string]*Resource
}

// connect introspects a remote resource.
func (b *builder) connect(ctx context.Context, url string) (*Resource, error) {
	if b.env.Remote == nil {
		return nil, errs.New(errs.CodeNotFound, "cannot import %s: no remote connector configured", url)
	}
	client, err := b.env.Remote.Connect(ctx, url)
	if err != nil {
		return nil, errs.With(err, "connect %s", url)
	}
	methods, err := client.Methods(ctx)
	if err != nil {
		return nil, errs.With(err, "introspect %s", url)
	}

	b.env.Logger.Debug().
		Str("url", url).
		Strs("methods", methods).
		Msg("remote resource introspected")

	return &Resource{
		env:      b.env,
		location: url,
		kind:     value.KindResource,
		remote: &remoteBinding{
			url:      url,
			client:   client,
			methods:  append([]string(nil), methods...),
			dispatch: make(map[string]*Resource),
		},
	}, nil
}

// stub returns the forwarding method for name, or nil when the remote does
// not expose it.
func (rb *remoteBinding) stub(owner *Resource, name string) *Resource {
	if rb.method != "" {
		return nil
	}
	found := false
	for _, m := range rb.methods {
		if m == name {
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()
	if s, ok := rb.dispatch[name]; ok {
		return s
	}
	s := &Resource{
		env:    owner.env,
		key:    name,
		parent: owner,
		kind:   value.KindMethod,
		method: &methodSpec{},
		remote: &remoteBinding{url: rb.url, client: rb.client, method: name},
	}
	rb.dispatch[name] = s
	return s
}

func (rb *remoteBinding) forward(ctx context.Context, in Input) (any, error) {
	if in.Options == nil {
		in.Options = value.NewOrderedMap()
	}
	return rb.client.Call(ctx, rb.method, Input{
		Arguments: value.Plain(in.Arguments).([]any),
		Options:   in.Options,
	})
}

// RemoteURL returns the URL of a remote resource or stub.
func (r *Resource) RemoteURL() string {
	if r.remote == nil {
		return ""
	}
	return r.remote.url
}
