package template

import "sync"

// Templater keeps named templates so they can be registered once and rendered
// many times, possibly from concurrent tasks.
type Templater struct {
	mu        sync.RWMutex
	templates map[string]any
}

func NewTemplater() *Templater {
	return &Templater{templates: make(map[string]any)}
}

// Add registers tmpl under name, replacing any previous template with that name.
// Placeholders are not checked here; use Variables to inspect them.
func (t *Templater) Add(name string, tmpl any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.templates[name] = tmpl
}

func (t *Templater) get(name string) (any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tmpl, ok := t.templates[name]
	if !ok {
		return nil, newTemplateError(ErrTemplateNotFound, name)
	}

	return tmpl, nil
}

// Render renders the template registered under name.
func (t *Templater) Render(name string, context any) (any, error) {
	tmpl, err := t.get(name)
	if err != nil {
		return nil, err
	}

	return Render(tmpl, context)
}

// Variables lists the placeholders of the template registered under name.
func (t *Templater) Variables(name string) ([]string, error) {
	tmpl, err := t.get(name)
	if err != nil {
		return nil, err
	}

	return ExtractVariables(tmpl)
}
