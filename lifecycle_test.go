package journal_test

import (
	"context"
	"errors"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	. "github.com/dogmatiq/journal"
	. "github.com/dogmatiq/journal/fixtures"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type Journal (lifecycle)", func() {
	var (
		ctx     context.Context
		cancel  context.CancelFunc
		stub    *StoreStub
		logger  *logging.BufferedLogger
		journal *Journal
	)

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
	})

	AfterEach(func() {
		journal.Stop()
		cancel()
	})

	Describe("func OnAdmission()", func() {
		It("ignores entities that are not event-sourced", func() {
			entity := &EntityStub{ID: "<entity>"}

			err := journal.OnAdmission(ctx, entity)
			Expect(err).ShouldNot(HaveOccurred())

			_, err = journal.Resolve(entity.Identity())
			Expect(err).To(BeAssignableToTypeOf(&NotRegisteredError{}))
		})

		It("registers event-sourced entities under their declared persistence ID", func() {
			p, err := Marshaler.Marshal(TestEventA1)
			Expect(err).ShouldNot(HaveOccurred())

			err = stub.Store.Append(ctx, "<stream>", p)
			Expect(err).ShouldNot(HaveOccurred())

			entity := NewEventSourcedStub("<entity>", "<stream>")

			err = journal.OnAdmission(ctx, entity)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(entity.Events()).To(Equal([]any{TestEventA1}))

			id, err := journal.Resolve(entity.Identity())
			Expect(err).ShouldNot(HaveOccurred())
			Expect(id).To(Equal("<stream>"))
		})

		It("returns and logs a configuration error if the persistence ID is invalid", func() {
			entity := NewEventSourcedStub("<entity>", "   ")

			err := journal.OnAdmission(ctx, entity)

			var cerr *ConfigurationError
			Expect(errors.As(err, &cerr)).To(BeTrue())
			Expect(cerr.Entity).To(Equal(Identity("<entity>")))
			Expect(cerr.PersistenceID).To(Equal("   "))

			Expect(logger.Messages()).To(ContainElement(
				logging.BufferedLogMessage{
					Message: `unable to admit entity: entity '<entity>' has an invalid persistence ID ("   "): persistence ID must not consist entirely of whitespace`,
				},
			))

			_, err = journal.Resolve(entity.Identity())
			Expect(err).To(BeAssignableToTypeOf(&NotRegisteredError{}))
		})

		It("surfaces conflicts without retrying", func() {
			entity := NewEventSourcedStub("<entity>", "<stream>")

			err := journal.OnAdmission(ctx, entity)
			Expect(err).ShouldNot(HaveOccurred())

			err = journal.OnAdmission(ctx, entity)
			Expect(err).To(BeAssignableToTypeOf(&AlreadyRegisteredError{}))
		})
	})

	Describe("func OnResignation()", func() {
		It("unregisters the entity", func() {
			entity := NewEventSourcedStub("<entity>", "<stream>")

			err := journal.OnAdmission(ctx, entity)
			Expect(err).ShouldNot(HaveOccurred())

			journal.OnResignation(entity.Identity())

			_, err = journal.Resolve(entity.Identity())
			Expect(err).To(BeAssignableToTypeOf(&NotRegisteredError{}))

			err = journal.Emit(ctx, entity, TestEventA1)
			Expect(err).To(BeAssignableToTypeOf(&NotRegisteredError{}))

			Expect(logger.Messages()).To(ContainElement(
				logging.BufferedLogMessage{
					Message: "entity '<entity>' resigned from persistence ID '<stream>'",
					IsDebug: true,
				},
			))
		})

		It("releases the persistence ID for use by a new entity instance", func() {
			entity := NewEventSourcedStub("<entity>", "<stream>")

			err := journal.OnAdmission(ctx, entity)
			Expect(err).ShouldNot(HaveOccurred())

			err = journal.Emit(ctx, entity, TestEventA1)
			Expect(err).ShouldNot(HaveOccurred())

			journal.OnResignation(entity.Identity())

			restarted := NewEventSourcedStub(NewIdentity(), "<stream>")

			err = journal.OnAdmission(ctx, restarted)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(restarted.Events()).To(Equal([]any{TestEventA1}))
		})

		It("does nothing if the entity is not registered", func() {
			journal.OnResignation("<unknown>")
			journal.OnResignation("<unknown>")

			Expect(logger.Messages()).NotTo(ContainElement(
				HaveField("Message", ContainSubstring("resigned")),
			))
		})
	})
})
