package domain

// FieldErrors maps a field to the message shown beneath its input.
type FieldErrors map[FieldName]string

func (e FieldErrors) Set(field FieldName, message string) {
	e[field] = message
}

func (e FieldErrors) Clear(field FieldName) {
	delete(e, field)
}

func (e FieldErrors) Clone() FieldErrors {
	out := make(FieldErrors, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}
