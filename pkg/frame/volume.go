package frame

// Per-channel gain applied when a stereo buffer is routed into a surround port.
// Channel c of the port receives channel c%DefaultChannels of the source, scaled by vv[c].
type VolumeVector [SurroundChannels]float32

// A volume vector that passes every channel unchanged.
func UnitVolumeVector() VolumeVector {
	var vv VolumeVector
	for i := range vv {
		vv[i] = 1.0
	}
	return vv
}

// A volume vector scaling every channel by the same gain.
func UniformVolumeVector(gain float32) VolumeVector {
	var vv VolumeVector
	for i := range vv {
		vv[i] = gain
	}
	return vv
}

// Build a volume vector from a gain and a stereo panning value in [-1.0, 1.0]
// (-1.0 hard left, 0.0 centre, 1.0 hard right). Panning outside the range is clamped.
//
// Panning is linear and only attenuates: the centred position yields the unpanned gain on both sides.
func PanningToVolumeVector(gain float32, panning float32) VolumeVector {
	panning = Clip(panning)

	left, right := gain, gain
	if panning > 0 {
		left *= 1.0 - panning
	} else if panning < 0 {
		right *= 1.0 + panning
	}

	var vv VolumeVector
	for c := range vv {
		if c%DefaultChannels == 0 {
			vv[c] = left
		} else {
			vv[c] = right
		}
	}
	return vv
}
