package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/order-management/internal/order"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	viewIndex   = "index.html"
	viewDetails = "details.html"
	viewForm    = "form.html"
	viewDelete  = "delete.html"
)

type views map[string]*template.Template

func loadViews() (views, error) {
	funcs := template.FuncMap{
		"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
		"date":  func(t time.Time) string { return t.Local().Format(orderDateLayout) },
		"total": func(o order.Order) string { return o.Total().StringFixed(2) },
	}

	v := make(views)
	for _, page := range []string{viewIndex, viewDetails, viewForm, viewDelete} {
		tmpl, err := template.New(page).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", page, err)
		}
		v[page] = tmpl
	}
	return v, nil
}

// render buffers the page so that a template failure still yields a clean 500.
func (v views) render(w http.ResponseWriter, status int, page string, data any) {
	tmpl, ok := v[page]
	if !ok {
		log.Error().Str("template", page).Msg("Unknown template")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		log.Error().Err(err).Str("template", page).Msg("Failed to render template")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		log.Error().Err(err).Str("template", page).Msg("Failed to write response")
	}
}

type indexPage struct {
	Title  string
	Orders []order.Order
}

type orderPage struct {
	Title     string
	Order     *order.Order
	CSRFToken string
}

type formPage struct {
	Title     string
	Action    string
	IsEdit    bool
	Form      OrderForm
	Errors    map[string]string
	CSRFToken string
}
