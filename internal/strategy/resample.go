package strategy

// Resampler performs linear-interpolation sample-rate conversion,
// generalized from the teacher pack's voice-assistant resampler. It is
// used by the Session Manager's forwarder to bring device audio down to
// the native-streaming strategy's working rate; it is never invoked inside the Capture
// Engine, which must preserve the archival WAV bit-for-bit.
type Resampler struct {
	fromRate   float64
	toRate     float64
	ratio      float64
	lastSample float32
}

// NewResampler configures a resampler for the given source/target rates.
func NewResampler(fromRate, toRate uint32) *Resampler {
	ratio := float64(toRate) / float64(fromRate)
	return &Resampler{fromRate: float64(fromRate), toRate: float64(toRate), ratio: ratio}
}

// Resample converts input to the target rate, interpolating only between
// samples of input itself. lastSample records the final input sample,
// but samples from earlier calls never enter the interpolation.
func (r *Resampler) Resample(input []float32) []float32 {
	if r.ratio == 1.0 || len(input) == 0 {
		return input
	}

	inputLen := len(input)
	outputLen := int(float64(inputLen) * r.ratio)
	output := make([]float32, outputLen)

	for i := 0; i < outputLen; i++ {
		srcPos := float64(i) / r.ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		sample1 := r.lastSample
		if srcIdx < inputLen {
			sample1 = input[srcIdx]
		}
		sample2 := sample1
		if srcIdx+1 < inputLen {
			sample2 = input[srcIdx+1]
		} else if srcIdx < inputLen {
			sample2 = input[inputLen-1]
		}
		output[i] = sample1 + (sample2-sample1)*frac
	}

	r.lastSample = input[inputLen-1]
	return output
}

// ChannelsToMono averages interleaved multi-channel frames down to mono.
// A no-op when channels is already 1.
func ChannelsToMono(interleaved []float32, channels uint16) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / int(channels)
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < int(channels); c++ {
			sum += interleaved[i*int(channels)+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
