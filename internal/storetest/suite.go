package storetest

import (
	"context"
	"fmt"
	"time"

	"github.com/dogmatiq/journal/internal/x/gomegax"
	"github.com/dogmatiq/journal/store"
	"github.com/dogmatiq/marshalkit"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"golang.org/x/sync/errgroup"
)

// DefaultTestTimeout is the default timeout for each test.
const DefaultTestTimeout = 3 * time.Second

// Out is a container for values that are provided by the store-specific
// initialization code to the test suite.
type Out struct {
	// NewStore returns a new store to be tested, and a function that releases
	// any resources held by it other than the store itself. close may be nil.
	//
	// Stores returned by successive calls must share the same underlying
	// storage.
	NewStore func() (s store.Store, close func())

	// TestTimeout is the maximum duration allowed for each test. If it is
	// zero, DefaultTestTimeout is used.
	TestTimeout time.Duration
}

// Declare declares generic behavioral tests for a specific store
// implementation.
//
// before is called before each test to set up the backing storage. after, if
// non-nil, is called after each test to tear it down.
func Declare(
	before func(ctx context.Context) Out,
	after func(),
) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		out    Out
		st     store.Store
		closes []func()
	)

	// open returns a new store and arranges for it to be closed after the test.
	open := func() store.Store {
		s, c := out.NewStore()
		closes = append(closes, func() {
			s.Close() // nolint:errcheck
			if c != nil {
				c()
			}
		})
		return s
	}

	ginkgo.BeforeEach(func() {
		setupCtx, cancelSetup := context.WithTimeout(context.Background(), DefaultTestTimeout)
		defer cancelSetup()

		out = before(setupCtx)

		if out.TestTimeout <= 0 {
			out.TestTimeout = DefaultTestTimeout
		}

		ctx, cancel = context.WithTimeout(context.Background(), out.TestTimeout)
		closes = nil
		st = open()
	})

	ginkgo.AfterEach(func() {
		for i := len(closes) - 1; i >= 0; i-- {
			closes[i]()
		}

		cancel()

		if after != nil {
			after()
		}
	})

	ginkgo.Describe("func ReadAll()", func() {
		ginkgo.It("returns an empty result if the stream has no events", func() {
			records, err := st.ReadAll(ctx, "<empty>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(records).To(gomega.BeEmpty())
		})

		ginkgo.It("returns the events in the order they were appended", func() {
			appendEvents(ctx, st, "<stream>", "e1", "e2", "e3")

			records, err := st.ReadAll(ctx, "<stream>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(records).To(gomegax.EqualX(
				[]store.Record{
					NewRecord("<stream>", 0, "e1"),
					NewRecord("<stream>", 1, "e2"),
					NewRecord("<stream>", 2, "e3"),
				},
			))
		})

		ginkgo.It("does not return events from other streams", func() {
			appendEvents(ctx, st, "<stream-a>", "a1", "a2")
			appendEvents(ctx, st, "<stream-b>", "b1")

			records, err := st.ReadAll(ctx, "<stream-b>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(records).To(gomegax.EqualX(
				[]store.Record{
					NewRecord("<stream-b>", 0, "b1"),
				},
			))
		})

		ginkgo.It("returns an error if the context is canceled", func() {
			cancel()

			_, err := st.ReadAll(ctx, "<stream>")
			gomega.Expect(err).To(gomega.HaveOccurred())
		})

		ginkgo.It("returns an error if the store is closed", func() {
			err := st.Close()
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			_, err = st.ReadAll(ctx, "<stream>")
			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})

	ginkgo.Describe("func Append()", func() {
		ginkgo.It("assigns contiguous offsets starting at zero", func() {
			appendEvents(ctx, st, "<stream>", "e1", "e2")

			records, err := st.ReadAll(ctx, "<stream>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(records).To(gomega.HaveLen(2))
			gomega.Expect(records[0].Offset).To(gomega.BeNumerically("==", 0))
			gomega.Expect(records[1].Offset).To(gomega.BeNumerically("==", 1))
		})

		ginkgo.It("preserves packets with empty data", func() {
			p := marshalkit.Packet{MediaType: "application/octet-stream"}

			err := st.Append(ctx, "<stream>", p)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			records, err := st.ReadAll(ctx, "<stream>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(records).To(gomega.HaveLen(1))
			gomega.Expect(records[0].Packet.MediaType).To(gomega.Equal(p.MediaType))
			gomega.Expect(records[0].Packet.Data).To(gomega.BeEmpty())
		})

		ginkgo.It("makes events visible to other stores that share the same storage", func() {
			appendEvents(ctx, st, "<stream>", "e1")

			other := open()
			appendEvents(ctx, other, "<stream>", "e2")

			records, err := other.ReadAll(ctx, "<stream>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(records).To(gomegax.EqualX(
				[]store.Record{
					NewRecord("<stream>", 0, "e1"),
					NewRecord("<stream>", 1, "e2"),
				},
			))
		})

		ginkgo.It("allows concurrent appends to distinct streams", func() {
			const (
				streams = 5
				events  = 10
			)

			g, gctx := errgroup.WithContext(ctx)

			for i := 0; i < streams; i++ {
				id := fmt.Sprintf("<stream-%d>", i)

				g.Go(func() error {
					for j := 0; j < events; j++ {
						if err := st.Append(gctx, id, NewPacket(fmt.Sprintf("e%d", j))); err != nil {
							return err
						}
					}
					return nil
				})
			}

			gomega.Expect(g.Wait()).To(gomega.Succeed())

			for i := 0; i < streams; i++ {
				id := fmt.Sprintf("<stream-%d>", i)

				records, err := st.ReadAll(ctx, id)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(records).To(gomega.HaveLen(events))

				for j, r := range records {
					gomega.Expect(r).To(gomegax.EqualX(
						NewRecord(id, uint64(j), fmt.Sprintf("e%d", j)),
					))
				}
			}
		})

		ginkgo.It("returns an error if the context is canceled", func() {
			cancel()

			err := st.Append(ctx, "<stream>", NewPacket("e1"))
			gomega.Expect(err).To(gomega.HaveOccurred())
		})

		ginkgo.It("returns an error if the store is closed", func() {
			err := st.Close()
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = st.Append(ctx, "<stream>", NewPacket("e1"))
			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})
}

// appendEvents appends an event packet for each of the given values.
func appendEvents(
	ctx context.Context,
	s store.Store,
	id string,
	values ...string,
) {
	for _, v := range values {
		err := s.Append(ctx, id, NewPacket(v))
		gomega.ExpectWithOffset(1, err).ShouldNot(gomega.HaveOccurred())
	}
}
