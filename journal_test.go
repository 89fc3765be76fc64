package journal_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	. "github.com/dogmatiq/journal"
	. "github.com/dogmatiq/journal/fixtures"
	. "github.com/dogmatiq/journal/internal/x/gomegax"
	"github.com/dogmatiq/journal/store"
	"github.com/dogmatiq/marshalkit"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type Journal", func() {
	var (
		ctx     context.Context
		cancel  context.CancelFunc
		stub    *StoreStub
		logger  *logging.BufferedLogger
		journal *Journal
		entity  *EventSourcedStub
	)

	// seed appends events directly to the underlying store.
	seed := func(id string, events ...any) {
		for _, ev := range events {
			p, err := Marshaler.Marshal(ev)
			Expect(err).ShouldNot(HaveOccurred())

			err = stub.Store.Append(ctx, id, p)
			Expect(err).ShouldNot(HaveOccurred())
		}
	}

	// stored returns the events in the underlying store.
	stored := func(id string) []any {
		records, err := stub.Store.ReadAll(ctx, id)
		Expect(err).ShouldNot(HaveOccurred())

		var events []any
		for _, rec := range records {
			ev, err := Marshaler.Unmarshal(rec.Packet)
			Expect(err).ShouldNot(HaveOccurred())
			events = append(events, ev)
		}

		return events
	}

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 3*time.Second)

		stub = NewStoreStub()
		logger = &logging.BufferedLogger{CaptureDebug: true}

		journal = New(
			WithStore(stub.Factory()),
			WithMarshaler(Marshaler),
			WithLogger(logger),
		)

		err := journal.Start(ctx)
		Expect(err).ShouldNot(HaveOccurred())

		entity = NewEventSourcedStub("<entity>", "<stream>")
	})

	AfterEach(func() {
		journal.Stop()
		cancel()
	})

	Describe("func Start()", func() {
		It("labels messages from the store with the component name", func() {
			Expect(logger.Messages()).To(ContainElement(
				logging.BufferedLogMessage{
					Message: "store: store opened (*fixtures.StoreStub)",
					IsDebug: true,
				},
			))
		})

		It("returns an error if the journal is already started", func() {
			err := journal.Start(ctx)
			Expect(err).To(Equal(ErrAlreadyStarted))
		})

		It("returns an error if the journal has been stopped", func() {
			err := journal.Stop()
			Expect(err).ShouldNot(HaveOccurred())

			err = journal.Start(ctx)
			Expect(err).To(Equal(ErrStopped))
		})

		It("returns an error if the store can not be opened", func() {
			j := New(
				WithMarshaler(Marshaler),
				WithStore(func(context.Context) (store.Store, error) {
					return nil, errors.New("<error>")
				}),
			)

			err := j.Start(ctx)
			Expect(err).To(MatchError("store open failed: <error>"))

			var serr *StoreError
			Expect(errors.As(err, &serr)).To(BeTrue())
		})
	})

	Describe("func Stop()", func() {
		It("closes the store", func() {
			closed := false
			stub.CloseFunc = func() error {
				closed = true
				return nil
			}

			err := journal.Stop()
			Expect(err).ShouldNot(HaveOccurred())
			Expect(closed).To(BeTrue())
		})

		It("returns an error if the journal has not been started", func() {
			j := New(WithMarshaler(Marshaler))

			err := j.Stop()
			Expect(err).To(Equal(ErrNotStarted))
		})

		It("returns an error if the journal is already stopped", func() {
			err := journal.Stop()
			Expect(err).ShouldNot(HaveOccurred())

			err = journal.Stop()
			Expect(err).To(Equal(ErrStopped))
		})

		It("causes future operations to fail", func() {
			err := journal.Stop()
			Expect(err).ShouldNot(HaveOccurred())

			err = journal.Register(ctx, entity, "<stream>")
			Expect(err).To(Equal(ErrStopped))

			err = journal.Emit(ctx, entity, TestEventA1)
			Expect(err).To(Equal(ErrStopped))

			_, err = journal.Resolve(entity.Identity())
			Expect(err).To(Equal(ErrStopped))
		})

		It("releases emits that are waiting on a stream, after allowing the in-progress append to complete", func() {
			err := journal.Register(ctx, entity, "<stream>")
			Expect(err).ShouldNot(HaveOccurred())

			appending := make(chan struct{})
			unblock := make(chan struct{})

			stub.AppendFunc = func(ctx context.Context, id string, p marshalkit.Packet) error {
				close(appending)
				<-unblock
				return stub.Store.Append(ctx, id, p)
			}

			first := make(chan error, 1)
			go func() {
				first <- journal.Emit(ctx, entity, TestEventA1)
			}()
			<-appending

			second := make(chan error, 1)
			go func() {
				second <- journal.Emit(ctx, entity, TestEventA2)
			}()

			// Give the second emit a chance to join the queue.
			time.Sleep(20 * time.Millisecond)

			stopped := make(chan error, 1)
			go func() {
				stopped <- journal.Stop()
			}()

			Eventually(second).Should(Receive(Equal(ErrCancelled)))
			Consistently(stopped).ShouldNot(Receive())

			close(unblock)

			Eventually(first).Should(Receive(BeNil()))
			Eventually(stopped).Should(Receive(BeNil()))

			Expect(entity.Events()).To(Equal([]any{TestEventA1}))
		})
	})

	Describe("func Register()", func() {
		It("applies zero events if the stream is empty", func() {
			err := journal.Register(ctx, entity, "<stream>")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(entity.Events()).To(BeEmpty())
		})

		It("applies the historical events in order", func() {
			seed("<stream>", TestEventA1, TestEventA2)
			seed("<other>", TestEventB1)

			err := journal.Register(ctx, entity, "<stream>")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(entity.Events()).To(Equal([]any{
				TestEventA1,
				TestEventA2,
			}))
		})

		It("returns an error if the entity is already registered", func() {
			err := journal.Register(ctx, entity, "dup")
			Expect(err).ShouldNot(HaveOccurred())

			err = journal.Register(ctx, entity, "dup2")
			Expect(err).To(MatchError("entity '<entity>' is already registered with persistence ID 'dup'"))

			var rerr *AlreadyRegisteredError
			Expect(errors.As(err, &rerr)).To(BeTrue())
			Expect(rerr.PersistenceID).To(Equal("dup"))

			id, err := journal.Resolve(entity.Identity())
			Expect(err).ShouldNot(HaveOccurred())
			Expect(id).To(Equal("dup"))

			Expect(stored("dup2")).To(BeEmpty())
		})

		It("does not replay the stream again when the entity is already registered", func() {
			seed("<stream>", TestEventA1)

			err := journal.Register(ctx, entity, "<stream>")
			Expect(err).ShouldNot(HaveOccurred())

			err = journal.Register(ctx, entity, "<stream>")
			Expect(err).To(HaveOccurred())
			Expect(entity.Events()).To(HaveLen(1))
		})

		It("returns an error if the persistence ID is claimed by another entity", func() {
			err := journal.Register(ctx, entity, "<stream>")
			Expect(err).ShouldNot(HaveOccurred())

			other := NewEventSourcedStub("<other>", "<stream>")
			err = journal.Register(ctx, other, "<stream>")
			Expect(err).To(MatchError("persistence ID '<stream>' is already claimed by entity '<entity>'"))

			var cerr *ClaimedError
			Expect(errors.As(err, &cerr)).To(BeTrue())
		})

		It("reports an existing registration in preference to an invalid persistence ID", func() {
			err := journal.Register(ctx, entity, "dup")
			Expect(err).ShouldNot(HaveOccurred())

			err = journal.Register(ctx, entity, "")

			var rerr *AlreadyRegisteredError
			Expect(errors.As(err, &rerr)).To(BeTrue())
			Expect(rerr.PersistenceID).To(Equal("dup"))
		})

		It("waits for an append by a resigned entity before replaying the stream", func() {
			err := journal.Register(ctx, entity, "<stream>")
			Expect(err).ShouldNot(HaveOccurred())

			appending := make(chan struct{})
			unblock := make(chan struct{})
			var once sync.Once

			stub.AppendFunc = func(ctx context.Context, id string, p marshalkit.Packet) error {
				once.Do(func() {
					close(appending)
					<-unblock
				})
				return stub.Store.Append(ctx, id, p)
			}

			emitted := make(chan error, 1)
			go func() {
				emitted <- journal.Emit(ctx, entity, TestEventA1)
			}()
			<-appending

			journal.OnResignation(entity.Identity())

			restarted := NewEventSourcedStub("<restarted>", "<stream>")

			registered := make(chan error, 1)
			go func() {
				registered <- journal.Register(ctx, restarted, "<stream>")
			}()

			Consistently(registered).ShouldNot(Receive())

			close(unblock)

			Eventually(emitted).Should(Receive(BeNil()))
			Eventually(registered).Should(Receive(BeNil()))

			Expect(restarted.Events()).To(Equal([]any{TestEventA1}))

			err = journal.Emit(ctx, restarted, TestEventA2)
			Expect(err).ShouldNot(HaveOccurred())

			Expect(restarted.Events()).To(Equal(stored("<stream>")))
			Expect(stored("<stream>")).To(Equal([]any{
				TestEventA1,
				TestEventA2,
			}))
		})

		It("returns a configuration error if the persistence ID is invalid", func() {
			err := journal.Register(ctx, entity, "")
			Expect(err).To(MatchError(`entity '<entity>' has an invalid persistence ID (""): persistence ID must not be empty`))

			_, err = journal.Resolve(entity.Identity())
			Expect(err).To(BeAssignableToTypeOf(&NotRegisteredError{}))
		})

		It("returns an error and leaves the entity unregistered if the stream can not be read", func() {
			stub.ReadAllFunc = func(context.Context, string) ([]store.Record, error) {
				return nil, errors.New("<error>")
			}

			err := journal.Register(ctx, entity, "<stream>")
			Expect(err).To(MatchError("store read failed for stream '<stream>': <error>"))

			_, err = journal.Resolve(entity.Identity())
			Expect(err).To(BeAssignableToTypeOf(&NotRegisteredError{}))

			stub.ReadAllFunc = nil

			err = journal.Register(ctx, entity, "<stream>")
			Expect(err).ShouldNot(HaveOccurred())
		})

		It("returns an error if the caller's context is canceled during replay", func() {
			stub.ReadAllFunc = func(ctx context.Context, _ string) ([]store.Record, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}

			ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()

			err := journal.Register(ctx, entity, "<stream>")
			Expect(err).To(MatchError(context.DeadlineExceeded))

			_, err = journal.Resolve(entity.Identity())
			Expect(err).To(BeAssignableToTypeOf(&NotRegisteredError{}))
		})

		It("does not accept emits until replay is complete", func() {
			reading := make(chan struct{})
			unblock := make(chan struct{})

			stub.ReadAllFunc = func(ctx context.Context, id string) ([]store.Record, error) {
				close(reading)
				<-unblock
				return stub.Store.ReadAll(ctx, id)
			}

			seed("<stream>", TestEventA1)

			result := make(chan error, 1)
			go func() {
				result <- journal.Register(ctx, entity, "<stream>")
			}()
			<-reading

			err := journal.Emit(ctx, entity, TestEventA2)
			Expect(err).To(BeAssignableToTypeOf(&NotRegisteredError{}))

			id, err := journal.Resolve(entity.Identity())
			Expect(err).ShouldNot(HaveOccurred())
			Expect(id).To(Equal("<stream>"))

			close(unblock)
			Eventually(result).Should(Receive(BeNil()))

			err = journal.Emit(ctx, entity, TestEventA2)
			Expect(err).ShouldNot(HaveOccurred())

			Expect(entity.Events()).To(Equal([]any{
				TestEventA1,
				TestEventA2,
			}))
			Expect(stored("<stream>")).To(Equal([]any{
				TestEventA1,
				TestEventA2,
			}))
		})

		It("logs the number of events replayed", func() {
			seed("<stream>", TestEventA1, TestEventA2)

			err := journal.Register(ctx, entity, "<stream>")
			Expect(err).ShouldNot(HaveOccurred())

			Expect(logger.Messages()).To(ContainElement(
				logging.BufferedLogMessage{
					Message: "entity '<entity>' registered with persistence ID '<stream>' (2 historical event(s))",
					IsDebug: true,
				},
			))
		})

		When("the entity resigns during replay", func() {
			It("returns ErrCancelled if the entity resigns while the stream is being read", func() {
				reading := make(chan struct{})

				stub.ReadAllFunc = func(ctx context.Context, _ string) ([]store.Record, error) {
					close(reading)
					<-ctx.Done()
					return nil, ctx.Err()
				}

				result := make(chan error, 1)
				go func() {
					result <- journal.Register(ctx, entity, "B")
				}()
				<-reading

				journal.OnResignation(entity.Identity())

				Eventually(result).Should(Receive(Equal(ErrCancelled)))

				_, err := journal.Resolve(entity.Identity())
				Expect(err).To(BeAssignableToTypeOf(&NotRegisteredError{}))
			})

			It("returns ErrCancelled if the entity resigns while events are being applied", func() {
				seed("B", TestEventA1, TestEventA2, TestEventA3)

				entity.ApplyEventFunc = func(any) {
					journal.OnResignation(entity.Identity())
				}

				err := journal.Register(ctx, entity, "B")
				Expect(err).To(Equal(ErrCancelled))

				err = journal.Emit(ctx, entity, TestEventB1)
				Expect(err).To(BeAssignableToTypeOf(&NotRegisteredError{}))
			})

			It("replays the stream from the start when the entity registers again", func() {
				seed("B", TestEventA1, TestEventA2, TestEventA3)

				entity.ApplyEventFunc = func(any) {
					journal.OnResignation(entity.Identity())
				}

				err := journal.Register(ctx, entity, "B")
				Expect(err).To(Equal(ErrCancelled))

				restarted := NewEventSourcedStub("<restarted>", "B")

				err = journal.Register(ctx, restarted, "B")
				Expect(err).ShouldNot(HaveOccurred())
				Expect(restarted.Events()).To(Equal([]any{
					TestEventA1,
					TestEventA2,
					TestEventA3,
				}))
			})
		})
	})

	Describe("func Emit()", func() {
		It("appends the event to an empty stream", func() {
			err := journal.Register(ctx, entity, "A")
			Expect(err).ShouldNot(HaveOccurred())

			err = journal.Emit(ctx, entity, TestEventA1)
			Expect(err).ShouldNot(HaveOccurred())

			Expect(stored("A")).To(Equal([]any{TestEventA1}))
		})

		It("appends the event after the historical events", func() {
			seed("A", TestEventA1, TestEventA2)

			err := journal.Register(ctx, entity, "A")
			Expect(err).ShouldNot(HaveOccurred())

			err = journal.Emit(ctx, entity, TestEventA3)
			Expect(err).ShouldNot(HaveOccurred())

			Expect(entity.Events()).To(Equal([]any{
				TestEventA1,
				TestEventA2,
				TestEventA3,
			}))
			Expect(stored("A")).To(Equal([]any{
				TestEventA1,
				TestEventA2,
				TestEventA3,
			}))
		})

		It("supports protocol buffers events", func() {
			err := journal.Register(ctx, entity, "A")
			Expect(err).ShouldNot(HaveOccurred())

			err = journal.Emit(ctx, entity, NewProtoEvent("<value>"))
			Expect(err).ShouldNot(HaveOccurred())

			events := stored("A")
			Expect(events).To(HaveLen(1))
			Expect(events[0]).To(EqualX(NewProtoEvent("<value>")))
		})

		It("returns an error and performs no writes if the entity is not registered", func() {
			var appends atomic.Int32
			stub.AppendFunc = func(context.Context, string, marshalkit.Packet) error {
				appends.Add(1)
				return nil
			}

			err := journal.Emit(ctx, entity, TestEventA1)
			Expect(err).To(MatchError("entity '<entity>' is not registered"))

			var nerr *NotRegisteredError
			Expect(errors.As(err, &nerr)).To(BeTrue())
			Expect(appends.Load()).To(BeZero())
			Expect(entity.Events()).To(BeEmpty())
		})

		It("returns an error if the event can not be marshaled", func() {
			err := journal.Register(ctx, entity, "A")
			Expect(err).ShouldNot(HaveOccurred())

			err = journal.Emit(ctx, entity, struct{}{})
			Expect(err).Should(HaveOccurred())
			Expect(stored("A")).To(BeEmpty())
			Expect(entity.Events()).To(BeEmpty())
		})

		It("returns the store error without applying the event or retrying", func() {
			err := journal.Register(ctx, entity, "A")
			Expect(err).ShouldNot(HaveOccurred())

			var appends atomic.Int32
			stub.AppendFunc = func(context.Context, string, marshalkit.Packet) error {
				appends.Add(1)
				return errors.New("<error>")
			}

			err = journal.Emit(ctx, entity, TestEventA1)
			Expect(err).To(MatchError("store append failed for stream 'A': <error>"))
			Expect(appends.Load()).To(BeEquivalentTo(1))
			Expect(entity.Events()).To(BeEmpty())

			stub.AppendFunc = nil

			err = journal.Emit(ctx, entity, TestEventA2)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(stored("A")).To(Equal([]any{TestEventA2}))
		})

		It("appends concurrent events in the order they were emitted", func() {
			err := journal.Register(ctx, entity, "A")
			Expect(err).ShouldNot(HaveOccurred())

			appending := make(chan struct{})
			unblock := make(chan struct{})
			var once sync.Once

			stub.AppendFunc = func(ctx context.Context, id string, p marshalkit.Packet) error {
				once.Do(func() {
					close(appending)
					<-unblock
				})
				return stub.Store.Append(ctx, id, p)
			}

			p := make(chan error, 1)
			go func() {
				p <- journal.Emit(ctx, entity, TestEvent{Value: "p"})
			}()
			<-appending

			q := make(chan error, 1)
			go func() {
				q <- journal.Emit(ctx, entity, TestEvent{Value: "q"})
			}()

			// Give the second emit a chance to join the queue.
			time.Sleep(20 * time.Millisecond)
			close(unblock)

			Eventually(p).Should(Receive(BeNil()))
			Eventually(q).Should(Receive(BeNil()))

			Expect(stored("A")).To(Equal([]any{
				TestEvent{Value: "p"},
				TestEvent{Value: "q"},
			}))
		})

		It("allows at most one append per stream at a time", func() {
			err := journal.Register(ctx, entity, "A")
			Expect(err).ShouldNot(HaveOccurred())

			var inFlight, peak atomic.Int32
			stub.AppendFunc = func(ctx context.Context, id string, p marshalkit.Packet) error {
				n := inFlight.Add(1)
				defer inFlight.Add(-1)

				if n > peak.Load() {
					peak.Store(n)
				}

				time.Sleep(time.Millisecond)

				return stub.Store.Append(ctx, id, p)
			}

			var g sync.WaitGroup
			for i := 0; i < 10; i++ {
				g.Add(1)
				go func() {
					defer g.Done()
					defer GinkgoRecover()

					err := journal.Emit(ctx, entity, TestEventA1)
					Expect(err).ShouldNot(HaveOccurred())
				}()
			}
			g.Wait()

			Expect(peak.Load()).To(BeEquivalentTo(1))
			Expect(stored("A")).To(HaveLen(10))
		})

		It("does not order emits for different streams", func() {
			other := NewEventSourcedStub("<other>", "B")

			err := journal.Register(ctx, entity, "A")
			Expect(err).ShouldNot(HaveOccurred())

			err = journal.Register(ctx, other, "B")
			Expect(err).ShouldNot(HaveOccurred())

			unblock := make(chan struct{})
			stub.AppendFunc = func(ctx context.Context, id string, p marshalkit.Packet) error {
				if id == "A" {
					<-unblock
				}
				return stub.Store.Append(ctx, id, p)
			}

			a := make(chan error, 1)
			go func() {
				a <- journal.Emit(ctx, entity, TestEventA1)
			}()

			err = journal.Emit(ctx, other, TestEventB1)
			Expect(err).ShouldNot(HaveOccurred())

			close(unblock)
			Eventually(a).Should(Receive(BeNil()))
		})

		It("returns the cause if the caller's context is canceled while waiting", func() {
			err := journal.Register(ctx, entity, "A")
			Expect(err).ShouldNot(HaveOccurred())

			appending := make(chan struct{})
			unblock := make(chan struct{})
			var once sync.Once

			stub.AppendFunc = func(ctx context.Context, id string, p marshalkit.Packet) error {
				once.Do(func() {
					close(appending)
					<-unblock
				})
				return stub.Store.Append(ctx, id, p)
			}

			first := make(chan error, 1)
			go func() {
				first <- journal.Emit(ctx, entity, TestEventA1)
			}()
			<-appending

			waitCtx, cancelWait := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancelWait()

			err = journal.Emit(waitCtx, entity, TestEventA2)
			Expect(err).To(Equal(context.DeadlineExceeded))

			close(unblock)
			Eventually(first).Should(Receive(BeNil()))

			Expect(stored("A")).To(Equal([]any{TestEventA1}))
		})

		When("the entity resigns", func() {
			It("releases emits that are waiting on the stream with ErrCancelled", func() {
				err := journal.Register(ctx, entity, "A")
				Expect(err).ShouldNot(HaveOccurred())

				appending := make(chan struct{})
				unblock := make(chan struct{})
				var once sync.Once

				stub.AppendFunc = func(ctx context.Context, id string, p marshalkit.Packet) error {
					once.Do(func() {
						close(appending)
						<-unblock
					})
					return stub.Store.Append(ctx, id, p)
				}

				first := make(chan error, 1)
				go func() {
					first <- journal.Emit(ctx, entity, TestEventA1)
				}()
				<-appending

				second := make(chan error, 1)
				go func() {
					second <- journal.Emit(ctx, entity, TestEventA2)
				}()

				// Give the second emit a chance to join the queue.
				time.Sleep(20 * time.Millisecond)

				journal.OnResignation(entity.Identity())

				Eventually(second).Should(Receive(Equal(ErrCancelled)))

				close(unblock)
				Eventually(first).Should(Receive(BeNil()))

				Expect(stored("A")).To(Equal([]any{TestEventA1}))

				_, err = journal.Resolve(entity.Identity())
				Expect(err).To(BeAssignableToTypeOf(&NotRegisteredError{}))
			})
		})
	})

	Describe("func Resolve()", func() {
		It("returns the persistence ID of a registered entity", func() {
			err := journal.Register(ctx, entity, "<stream>")
			Expect(err).ShouldNot(HaveOccurred())

			id, err := journal.Resolve(entity.Identity())
			Expect(err).ShouldNot(HaveOccurred())
			Expect(id).To(Equal("<stream>"))
		})

		It("returns an error if the entity is not registered", func() {
			_, err := journal.Resolve(entity.Identity())
			Expect(err).To(MatchError("entity '<entity>' is not registered"))
		})

		It("returns an error if the journal has not been started", func() {
			j := New(WithMarshaler(Marshaler))

			_, err := j.Resolve(entity.Identity())
			Expect(err).To(Equal(ErrNotStarted))
		})
	})
})
