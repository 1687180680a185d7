// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"io"
)

// Output consumes interleaved int16 frames. Write may block to pace the
// caller at the playback rate.
type Output interface {
	Write(samples []int16) error
	io.Closer
}

// NullOutput discards everything, as when only generating a cache.
type NullOutput struct{}

func (NullOutput) Write([]int16) error { return nil }
func (NullOutput) Close() error        { return nil }

// MultiOutput writes to every output in order.
type MultiOutput []Output

// Write stops at the first failing output.
func (m MultiOutput) Write(samples []int16) error {
	for _, o := range m {
		if err := o.Write(samples); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every output and joins the errors.
func (m MultiOutput) Close() error {
	var errs []error
	for _, o := range m {
		if err := o.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Output = NullOutput{}
	_ Output = MultiOutput(nil)
)
