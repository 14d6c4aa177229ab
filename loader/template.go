package loader

import (
	"bytes"
	"math/rand"
	"text/template"

	"github.com/pkg/errors"
)

// DefaultBodyTemplate renders a small JSON document with a random payload.
const DefaultBodyTemplate = `{"Type":"{{ .type }}","Payload":"{{ rand_string 16 }}"}`

var builtins = template.FuncMap{
	"rand_int":    randInt,
	"rand_string": randString,
	"rand_float":  randFloat,
}

func randInt(from int, to int) interface{} {
	return rand.Intn(to-from) + from
}

func randFloat(from float64, to float64) interface{} {
	return (rand.Float64() * (to - from)) + from
}

func randString(length int) interface{} {
	letterRunes := []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	b := make([]rune, length)
	for i := range b {
		b[i] = letterRunes[rand.Intn(len(letterRunes))]
	}
	return string(b)
}

// bodyRenderer renders message bodies from a text/template.
type bodyRenderer struct {
	*template.Template
}

func parseBodyRenderer(in string) (*bodyRenderer, error) {
	if in == "" {
		in = DefaultBodyTemplate
	}
	tmpl, err := template.New("body").Funcs(builtins).Parse(in)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &bodyRenderer{tmpl}, nil
}

func (r *bodyRenderer) render(data map[string]string) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := r.Execute(buf, data); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}
