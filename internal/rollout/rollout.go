// Package rollout decides whether a device belongs to the fraction of the
// fleet that installs an available update immediately.
//
// The bucket is derived from a polynomial hash of the device identity, so the
// same device lands in the same bucket on every call and every boot. The hash
// is only meant to spread devices evenly over 100 buckets.
package rollout

// Hash accumulates h = h*31 + b over identity, starting at zero.
func Hash(identity []byte) uint32 {
	var h uint32
	for _, b := range identity {
		h = h*31 + uint32(b)
	}
	return h
}

// Bucket returns the device percentile in [0, 99].
func Bucket(identity []byte) uint8 {
	return uint8(Hash(identity) % 100)
}

// Decide reports whether the device is inside the first percentage buckets.
// A percentage of 0 excludes every device and 100 (or more) includes all.
func Decide(identity []byte, percentage uint8) bool {
	return Bucket(identity) < percentage
}
