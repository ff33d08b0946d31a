package email

import (
	"bytes"
	"context"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/shandysiswandi/courier/internal/notification/entity"
	"github.com/shandysiswandi/courier/internal/pkg/instrument"
	"go.opentelemetry.io/otel/codes"
)

type templateStore interface {
	GetTemplate(ctx context.Context, orgID int64, key string) (*entity.Template, error)
}

// Renderer renders stored templates: text/template for the subject, html/template for the body.
type Renderer struct {
	store templateStore
	ins   instrument.Instrumentation
}

func NewRenderer(store templateStore, ins instrument.Instrumentation) *Renderer {
	return &Renderer{store: store, ins: ins}
}

func (r *Renderer) Render(ctx context.Context, key string, data map[string]any, orgID int64) (_ *entity.RenderedEmail, err error) {
	ctx, span := r.ins.Tracer("notification.outbound.email").Start(ctx, "Render")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	tpl, err := r.store.GetTemplate(ctx, orgID, key)
	if err != nil {
		return nil, err
	}

	subject, err := renderText(key+".subject", tpl.Subject, data)
	if err != nil {
		return nil, err
	}

	html, err := renderHTML(key+".body", tpl.Body, data)
	if err != nil {
		return nil, err
	}

	return &entity.RenderedEmail{Subject: subject, HTML: html}, nil
}

func renderText(name, tpl string, data map[string]any) (string, error) {
	t, err := texttemplate.New(name).Option("missingkey=zero").Parse(tpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func renderHTML(name, tpl string, data map[string]any) (string, error) {
	t, err := htmltemplate.New(name).Option("missingkey=zero").Parse(tpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}
