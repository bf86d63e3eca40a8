package audio

// Resample converts one self-contained buffer from one rate to another.
// Streams must use a Resampler so chunk boundaries stay seamless.
func Resample(samples []float32, from, to int) []float32 {
	return NewResampler(from, to).Push(samples)
}

// Resampler converts a sample stream between rates with linear
// interpolation. The read position and the last input sample carry over
// between Push calls, so output length tracks the input exactly.
type Resampler struct {
	from, to int64
	// position of the next output sample in units of 1/to input samples,
	// relative to the first sample of the next pushed chunk
	pos  int64
	prev float32
}

func NewResampler(from, to int) *Resampler {
	if from <= 0 || to <= 0 {
		from, to = 1, 1
	}
	g := gcd(int64(from), int64(to))
	return &Resampler{from: int64(from) / g, to: int64(to) / g}
}

// Push consumes samples and returns every output sample they complete
func (r *Resampler) Push(samples []float32) []float32 {
	n := int64(len(samples))
	if n == 0 {
		return nil
	}
	if r.from == r.to {
		out := make([]float32, n)
		copy(out, samples)
		return out
	}

	out := make([]float32, 0, n*r.to/r.from+1)
	for {
		idx, rem := int64(-1), r.pos+r.to
		if r.pos >= 0 {
			idx, rem = r.pos/r.to, r.pos%r.to
		}
		if idx > n-1 {
			break
		}

		a := r.prev
		if idx >= 0 {
			a = samples[idx]
		}
		if rem == 0 {
			out = append(out, a)
		} else {
			if idx+1 > n-1 {
				break
			}
			frac := float32(rem) / float32(r.to)
			out = append(out, a*(1-frac)+samples[idx+1]*frac)
		}
		r.pos += r.from
	}

	r.pos -= n * r.to
	r.prev = samples[n-1]
	return out
}

// Reset forgets the stream position, e.g. after playback was cut
func (r *Resampler) Reset() {
	r.pos = 0
	r.prev = 0
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Framer regroups a sample stream into fixed-size frames.
type Framer struct {
	size int
	buf  []float32
}

func NewFramer(size int) *Framer {
	if size <= 0 {
		size = 4096
	}
	return &Framer{size: size, buf: make([]float32, 0, size)}
}

// Push appends samples and returns every complete frame now available.
func (f *Framer) Push(samples []float32) [][]float32 {
	f.buf = append(f.buf, samples...)

	var frames [][]float32
	for len(f.buf) >= f.size {
		frame := make([]float32, f.size)
		copy(frame, f.buf[:f.size])
		frames = append(frames, frame)
		f.buf = f.buf[f.size:]
	}
	return frames
}

// Pending reports how many samples are waiting for a full frame.
func (f *Framer) Pending() int {
	return len(f.buf)
}
