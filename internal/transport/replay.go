package transport

import "io"

// Replay streams a captured raw dump through the pipeline. Commands are
// accepted and discarded; EOF ends the stream.
type Replay struct {
	r io.Reader
}

func NewReplay(r io.Reader) *Replay {
	return &Replay{r: r}
}

func (r *Replay) Read(p []byte) (int, error) {
	return r.r.Read(p)
}

func (r *Replay) WriteCommand(string) error {
	return nil
}

func (r *Replay) Close() error {
	if c, ok := r.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
