/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	. "github.com/onsi/gomega"
)

func TestGetOrLoad(t *testing.T) {
	RegisterTestingT(t)

	c, err := NewDefault[string]()
	Expect(err).ToNot(HaveOccurred())
	defer c.Close()

	var loads atomic.Int32
	loader := func() (string, error) {
		loads.Add(1)
		return "metadata", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := c.GetOrLoad("v1", loader)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal("metadata"))
		}()
	}
	wg.Wait()
	Expect(loads.Load()).To(BeNumerically("<=", 2))

	v, found, err := c.GetOrLoad("v1", loader)
	Expect(err).ToNot(HaveOccurred())
	Expect(found).To(BeTrue())
	Expect(v).To(Equal("metadata"))
}

func TestGetOrLoadError(t *testing.T) {
	RegisterTestingT(t)

	c, err := NewDefault[int]()
	Expect(err).ToNot(HaveOccurred())
	defer c.Close()

	_, _, err = c.GetOrLoad("k", func() (int, error) { return 0, errors.New("unavailable") })
	Expect(err).To(MatchError("unavailable"))
	_, found := c.Get("k")
	Expect(found).To(BeFalse())

	c.Add("k", 7)
	v, found := c.Get("k")
	Expect(found).To(BeTrue())
	Expect(v).To(Equal(7))

	c.Delete("k")
	_, found = c.Get("k")
	Expect(found).To(BeFalse())
}
