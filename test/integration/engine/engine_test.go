// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package engine_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/permcore/internal/contexts"
	"github.com/holomush/permcore/internal/engine"
	"github.com/holomush/permcore/internal/store"
	"github.com/holomush/permcore/internal/subject"
)

// newEngine builds a fresh engine instance over the suite database, as
// if a separate server process had started.
func newEngine(ctx context.Context, types []engine.TypeConfig) (*engine.Engine, func()) {
	st, pool, err := store.NewPostgresStore(ctx, dsn)
	Expect(err).NotTo(HaveOccurred())

	eng := engine.New(st, subject.NewManualTicker(), types)
	Expect(eng.Init(ctx)).To(Succeed())
	return eng, pool.Close
}

func defaultTypes() []engine.TypeConfig {
	return []engine.TypeConfig{
		{Name: subject.TypeUser},
		{Name: subject.TypeGroup},
	}
}

// uniqueName avoids collisions between specs sharing one database.
func uniqueName(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, ulid.Make().String())
}

var _ = Describe("Engine over PostgreSQL", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		global contexts.Set
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 60*time.Second)
		DeferCleanup(cancel)
		global = contexts.NewSet()
	})

	It("persists updates across engine instances", func() {
		name := uniqueName("alice")
		ref := subject.NewRef(subject.TypeUser, name)

		writer, closeWriter := newEngine(ctx, defaultTypes())
		defer closeWriter()

		_, err := writer.UpdateData(ctx, ref, func(d *subject.Data) *subject.Data {
			return d.WithPermission(global, "chat", 1)
		})
		Expect(err).NotTo(HaveOccurred())

		reader, closeReader := newEngine(ctx, defaultTypes())
		defer closeReader()

		subj, err := reader.Subject(ctx, ref)
		Expect(err).NotTo(HaveOccurred())
		Expect(subj.HasPermission(ctx, global, "chat")).To(BeTrue())
	})

	It("resolves inheritance with contextual segments end to end", func() {
		adminName := uniqueName("admin")
		staffName := uniqueName("staff")
		userName := uniqueName("bob")
		nether := contexts.Single("world", "nether")

		eng, closeEng := newEngine(ctx, defaultTypes())
		defer closeEng()

		_, err := eng.UpdateData(ctx, subject.NewRef(subject.TypeGroup, staffName),
			func(d *subject.Data) *subject.Data {
				return d.WithPermission(global, "chat", 1)
			})
		Expect(err).NotTo(HaveOccurred())

		_, err = eng.UpdateData(ctx, subject.NewRef(subject.TypeGroup, adminName),
			func(d *subject.Data) *subject.Data {
				return d.
					WithPermission(global, "build", 1).
					WithPermission(nether, "build", -1).
					WithAddedParent(global, subject.NewRef(subject.TypeGroup, staffName))
			})
		Expect(err).NotTo(HaveOccurred())

		_, err = eng.UpdateData(ctx, subject.NewRef(subject.TypeUser, userName),
			func(d *subject.Data) *subject.Data {
				return d.WithAddedParent(global, subject.NewRef(subject.TypeGroup, adminName))
			})
		Expect(err).NotTo(HaveOccurred())

		subj, err := eng.Subject(ctx, subject.NewRef(subject.TypeUser, userName))
		Expect(err).NotTo(HaveOccurred())
		Expect(subj.HasPermission(ctx, global, "chat")).To(BeTrue(), "inherited through two levels")
		Expect(subj.HasPermission(ctx, global, "build")).To(BeTrue())
		Expect(subj.Permission(ctx, nether, "build")).To(Equal(-1), "contextual deny wins in the nether")
	})

	It("reloads subjects on LISTEN/NOTIFY from another writer", func() {
		name := uniqueName("carol")
		ref := subject.NewRef(subject.TypeUser, name)

		watcher, closeWatcher := newEngine(ctx, defaultTypes())
		defer closeWatcher()

		listenCtx, stopListening := context.WithCancel(ctx)
		Expect(watcher.StartWithListener(listenCtx, store.NewPgListener(dsn))).To(Succeed())
		defer watcher.Wait()
		defer stopListening()

		// Prime the watcher's cache before the external write lands.
		subj, err := watcher.Subject(ctx, ref)
		Expect(err).NotTo(HaveOccurred())
		Expect(subj.HasPermission(ctx, global, "fly")).To(BeFalse())

		writer, closeWriter := newEngine(ctx, defaultTypes())
		defer closeWriter()
		_, err = writer.UpdateData(ctx, ref, func(d *subject.Data) *subject.Data {
			return d.WithPermission(global, "fly", 1)
		})
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() bool {
			s, err := watcher.Subject(ctx, ref)
			if err != nil {
				return false
			}
			return s.HasPermission(ctx, global, "fly")
		}).WithTimeout(15 * time.Second).WithPolling(100 * time.Millisecond).Should(BeTrue())
	})

	It("serves concurrent writers without losing updates", func() {
		const writers = 20
		name := uniqueName("shared")
		ref := subject.NewRef(subject.TypeGroup, name)

		eng, closeEng := newEngine(ctx, defaultTypes())
		defer closeEng()

		var wg sync.WaitGroup
		for i := range writers {
			wg.Add(1)
			go func(n int) {
				defer GinkgoRecover()
				defer wg.Done()
				key := fmt.Sprintf("perm.%d", n)
				_, err := eng.UpdateData(ctx, ref, func(d *subject.Data) *subject.Data {
					return d.WithPermission(global, key, 1)
				})
				Expect(err).NotTo(HaveOccurred())
			}(i)
		}
		wg.Wait()

		subj, err := eng.Subject(ctx, ref)
		Expect(err).NotTo(HaveOccurred())
		for i := range writers {
			Expect(subj.Permission(ctx, global, fmt.Sprintf("perm.%d", i))).To(Equal(1))
		}
	})

	It("seeds default permissions during Init and persists them", func() {
		defaultName := uniqueName("default")
		types := []engine.TypeConfig{
			{
				Name:               subject.TypeUser,
				Default:            defaultName,
				DefaultPermissions: map[string]int{"chat": 1},
			},
		}

		eng, closeEng := newEngine(ctx, types)
		defer closeEng()

		subj, err := eng.Subject(ctx, subject.NewRef(subject.TypeUser, uniqueName("newcomer")))
		Expect(err).NotTo(HaveOccurred())
		Expect(subj.HasPermission(ctx, global, "chat")).To(BeTrue(), "falls back to the seeded default subject")

		// A fresh instance sees the seed without re-running Init logic.
		later, closeLater := newEngine(ctx, []engine.TypeConfig{{Name: subject.TypeUser, Default: defaultName}})
		defer closeLater()
		subj, err = later.Subject(ctx, subject.NewRef(subject.TypeUser, uniqueName("returning")))
		Expect(err).NotTo(HaveOccurred())
		Expect(subj.HasPermission(ctx, global, "chat")).To(BeTrue())
	})
})
