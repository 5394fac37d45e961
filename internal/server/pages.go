package server

import (
	"errors"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"loanml/pkg/dataprep"
)

const layout = `{{define "top"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Loan Approval</title>
<style>
body { font-family: sans-serif; max-width: 40rem; margin: 2rem auto; }
label { display: block; margin-top: .75rem; }
.error { color: #b00020; }
.approved { color: #1b5e20; }
.rejected { color: #b00020; }
table { border-collapse: collapse; }
td { padding: .2rem .6rem; border-bottom: 1px solid #ddd; }
</style>
</head>
<body>{{end}}
{{define "bottom"}}</body>
</html>{{end}}`

const homePage = `{{template "top"}}
<h1>Loan Approval</h1>
<p>Check whether an application is likely to be approved.</p>
<p><a href="/apply">Start an application</a></p>
{{template "bottom"}}`

const formPage = `{{template "top"}}
<h1>Loan Application</h1>
{{if .Errors}}<ul class="error">{{range .Errors}}<li>{{.Field}}: {{.Reason}} ({{.Value}})</li>{{end}}</ul>{{end}}
<form method="post" action="/apply">
{{range .Fields}}
<label>{{.Name}}
{{if .Options}}<select name="{{.Name}}">
{{$v := .Value}}{{range .Options}}<option value="{{.}}"{{if eq . $v}} selected{{end}}>{{.}}</option>{{end}}
</select>{{else}}<input type="number" step="any" min="0" name="{{.Name}}" value="{{.Value}}">{{end}}
</label>
{{end}}
<p><button type="submit">Predict</button></p>
</form>
{{template "bottom"}}`

const resultPage = `{{template "top"}}
<h1>Result</h1>
<p class="{{if .Approved}}approved{{else}}rejected{{end}}">{{.Message}}</p>
<h2>Submitted</h2>
<table>
{{range .Fields}}<tr><td>{{.Name}}</td><td>{{.Value}}</td></tr>{{end}}
</table>
{{if .Derived}}<h2>Computed</h2>
<table>
{{range .Derived}}<tr><td>{{.Name}}</td><td>{{.Value}}</td></tr>{{end}}
</table>{{end}}
<p><a href="/apply">New application</a></p>
{{template "bottom"}}`

const errorPage = `{{template "top"}}
<h1>Something went wrong</h1>
<p>{{.}}</p>
<p><a href="/apply">Back</a></p>
{{template "bottom"}}`

var pages = struct {
	home, form, result, failure *template.Template
}{
	home:    page("home", homePage),
	form:    page("form", formPage),
	result:  page("result", resultPage),
	failure: page("error", errorPage),
}

func page(name, body string) *template.Template {
	t := template.Must(template.New(name).Parse(layout))
	return template.Must(t.Parse(body))
}

type formField struct {
	Name    string
	Value   string
	Options []string
}

type formData struct {
	Fields []formField
	Errors []*dataprep.FieldError
}

type resultData struct {
	Approved bool
	Message  string
	Fields   []formField
	Derived  []formField
}

// derivedFields lists the computed columns used for the decision.
func derivedFields(f dataprep.Features) []formField {
	var out []formField
	for _, name := range dataprep.DerivedColumns() {
		if v, ok := f[name]; ok {
			out = append(out, formField{Name: name, Value: dataprep.FormatValue(v)})
		}
	}
	return out
}

// formFields lists the vocabulary in form order with rec's values filled in.
func formFields(rec dataprep.RawRecord) []formField {
	fields := make([]formField, 0, len(dataprep.Vocabulary))
	for _, f := range dataprep.Vocabulary {
		fields = append(fields, formField{
			Name:    f.Name,
			Value:   rec[f.Name],
			Options: dataprep.Options(f.Name),
		})
	}
	return fields
}

func (s *Server) render(w http.ResponseWriter, status int, t *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.Execute(w, data); err != nil {
		s.logger.Error("render page", zap.String("template", t.Name()), zap.Error(err))
	}
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, pages.home, nil)
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, pages.form, formData{Fields: formFields(nil)})
}

func (s *Server) handleFormSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, http.StatusBadRequest, pages.failure, "The form could not be read.")
		return
	}
	rec := make(dataprep.RawRecord, len(dataprep.Vocabulary))
	for _, f := range dataprep.Vocabulary {
		if r.PostForm.Has(f.Name) {
			rec[f.Name] = r.PostForm.Get(f.Name)
		}
	}

	out, err := s.predict(r, rec)
	switch {
	case errors.Is(err, dataprep.ErrInvalidInput):
		s.render(w, http.StatusBadRequest, pages.form, formData{
			Fields: formFields(rec),
			Errors: fieldErrors(err),
		})
	case err != nil:
		s.render(w, http.StatusInternalServerError, pages.failure,
			"The prediction service is unavailable. Please try again later.")
	default:
		s.render(w, http.StatusOK, pages.result, resultData{
			Approved: out.Approved,
			Message:  out.Message(),
			Fields:   formFields(rec),
			Derived:  derivedFields(out.Features),
		})
	}
}
