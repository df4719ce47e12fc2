package audit

// MultiRecorder fans one record out to several recorders in order. Nil
// entries are skipped so callers can pass optional sinks directly.
type MultiRecorder []Recorder

// Tee builds a MultiRecorder from the given recorders, dropping nils.
// Returns a NopRecorder when nothing remains.
func Tee(recorders ...Recorder) Recorder {
	multi := make(MultiRecorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			multi = append(multi, r)
		}
	}
	switch len(multi) {
	case 0:
		return NopRecorder{}
	case 1:
		return multi[0]
	default:
		return multi
	}
}

func (m MultiRecorder) Emit(rec *Record) {
	for _, r := range m {
		r.Emit(rec)
	}
}
