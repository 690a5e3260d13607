// Package installer orchestrates convergence of a database onto a desired
// schema.
//
// The installer diffs the desired object set for a schema group against the
// persisted registry, sequences the resulting work with the dependency
// resolver, executes DDL one statement at a time over the caller's
// connection, and mutates the registry entry for each object immediately
// after its DDL succeeds.
//
// The installer opens no transaction of its own and never commits. It is
// designed to run inside a transaction scope owned by the caller spanning
// the whole Install or Uninstall call, so a failure partway through leaves
// database and registry in their pre-call state. Concurrent calls against
// the same schema group are not coordinated.
//
// Example usage:
//
//	inst := installer.New(conn)
//	err := inst.InstallStatements(ctx, "app", []string{
//		"CREATE TABLE Beer(ID int, Description varchar(128))",
//		"CREATE PROC BeerProc AS SELECT * FROM Beer",
//	})
package installer

import (
	"context"
	"log/slog"
	"sort"

	"github.com/pseudomuto/groundskeeper/pkg/db"
	"github.com/pseudomuto/groundskeeper/pkg/parser"
	"github.com/pseudomuto/groundskeeper/pkg/registry"
	"github.com/pseudomuto/groundskeeper/pkg/resolver"
	"github.com/pseudomuto/groundskeeper/pkg/schema"
)

type (
	// Installer converges one database onto desired schema state.
	Installer struct {
		conn db.Conn
		log  *slog.Logger
	}

	// Option configures an Installer.
	Option func(*Installer)

	// plan is the partitioned diff between desired state and the registry
	// for a single install call.
	plan struct {
		objects  []*schema.Object
		entries  map[string]*registry.Entry
		position map[string]int

		toAdd       []*schema.Object
		alterTables []*schema.Object
		alterOthers []*schema.Object
		toRemove    []*registry.Entry
		keep        []*schema.Object

		// transient holds unchanged objects that must be dropped and
		// recreated solely because they block an in-place table change.
		transient map[string]*schema.Object

		// alterStmts holds the generated ALTER TABLE statements per
		// altered table key.
		alterStmts map[string][]string
	}
)

// WithLogger sets the logger used for progress reporting.
func WithLogger(log *slog.Logger) Option {
	return func(i *Installer) { i.log = log }
}

// New creates an Installer over a caller-scoped connection.
func New(conn db.Conn, opts ...Option) *Installer {
	i := &Installer{conn: conn, log: slog.Default()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// InstallStatements parses an ordered sequence of DDL statements and
// installs them as the desired state of the group.
func (i *Installer) InstallStatements(ctx context.Context, group string, statements []string) error {
	col, err := schema.NewCollection(statements)
	if err != nil {
		return err
	}
	return i.Install(ctx, group, col)
}

// Install converges the database onto the desired collection for the group.
// Re-running with an unchanged collection performs zero DDL.
func (i *Installer) Install(ctx context.Context, group string, col *schema.Collection) error {
	desired, err := col.Expand()
	if err != nil {
		return err
	}

	reg := registry.New(i.conn, group)
	p, err := i.buildPlan(ctx, reg, desired)
	if err != nil {
		return err
	}

	i.log.InfoContext(ctx, "installing schema group",
		"group", group,
		"objects", len(p.objects),
		"add", len(p.toAdd),
		"alter", len(p.alterTables)+len(p.alterOthers),
		"remove", len(p.toRemove),
		"recreate", len(p.transient))

	if err := i.executeDrops(ctx, reg, p); err != nil {
		return err
	}
	if err := i.executeTableAlters(ctx, reg, p); err != nil {
		return err
	}
	if err := i.executeCreates(ctx, reg, p); err != nil {
		return err
	}
	return i.syncKeepOrder(ctx, reg, p)
}

// Uninstall drops every registered object of the group in strict reverse
// dependency order and clears the group's registry state.
func (i *Installer) Uninstall(ctx context.Context, group string) error {
	reg := registry.New(i.conn, group)
	entries, err := reg.Load(ctx)
	if err != nil {
		return err
	}

	i.log.InfoContext(ctx, "uninstalling schema group", "group", group, "objects", len(entries))

	// Entries load in ascending install order; reverse-order the stubs.
	stubs := make([]*schema.Object, len(entries))
	for idx, e := range entries {
		stubs[idx] = &schema.Object{Name: e.Name, Type: e.Type}
	}
	ordered, err := resolver.Order(stubs, resolver.Uninstall)
	if err != nil {
		return err
	}

	entryByKey := entryMap(entries)
	for _, obj := range ordered {
		if err := i.dropObject(ctx, reg, obj, entryByKey[objectKey(obj)]); err != nil {
			return err
		}
	}
	return reg.Clear(ctx)
}

// buildPlan loads the registry and partitions the working set into add,
// remove, keep, and alter sets, then plans table alterations and the
// transient drop set.
func (i *Installer) buildPlan(ctx context.Context, reg *registry.Registry, desired *schema.Collection) (*plan, error) {
	entries, err := reg.Load(ctx)
	if err != nil {
		return nil, err
	}

	p := &plan{
		objects:    desired.Objects(),
		entries:    entryMap(entries),
		position:   make(map[string]int, desired.Len()),
		transient:  make(map[string]*schema.Object),
		alterStmts: make(map[string][]string),
	}

	// A full-order pass both validates the graph (cycles surface here,
	// before any DDL runs) and assigns the install sequence position
	// recorded in the registry for reverse-order uninstall.
	fullOrder, err := resolver.Order(p.objects, resolver.Install)
	if err != nil {
		return nil, err
	}
	for idx, obj := range fullOrder {
		p.position[obj.Key()] = idx
	}

	desiredKeys := make(map[string]bool, len(p.objects))
	for _, obj := range p.objects {
		desiredKeys[obj.Key()] = true

		entry, exists := p.entries[obj.Key()]
		switch {
		case !exists:
			p.toAdd = append(p.toAdd, obj)
		case entry.Signature == obj.Signature:
			p.keep = append(p.keep, obj)
		case obj.Type == parser.TypeTable:
			p.alterTables = append(p.alterTables, obj)
		default:
			p.alterOthers = append(p.alterOthers, obj)
		}
	}
	for _, e := range entries {
		if !desiredKeys[e.Name+"|"+string(e.Type)] {
			p.toRemove = append(p.toRemove, e)
		}
	}

	keepKeys := make(map[string]bool, len(p.keep))
	for _, obj := range p.keep {
		keepKeys[obj.Key()] = true
	}

	for _, table := range p.alterTables {
		stmts, err := planTableAlter(ctx, i.conn, table)
		if err != nil {
			return nil, err
		}
		p.alterStmts[table.Key()] = stmts

		// Dependents that survive unchanged still block the in-place
		// change; they join the transient drop set for recreation.
		for _, dep := range transitiveDependents(p.objects, table.Name) {
			if keepKeys[dep.Key()] {
				p.transient[dep.Key()] = dep
			}
		}
	}

	return p, nil
}

// executeDrops removes objects leaving the schema, changed non-table
// objects, and the transient drop set, in reverse dependency order.
func (i *Installer) executeDrops(ctx context.Context, reg *registry.Registry, p *plan) error {
	type dropItem struct {
		obj      *schema.Object
		entry    *registry.Entry
		removing bool
	}

	items := make([]dropItem, 0, len(p.toRemove)+len(p.transient)+len(p.alterOthers))
	for _, e := range p.toRemove {
		items = append(items, dropItem{
			obj:      &schema.Object{Name: e.Name, Type: e.Type},
			entry:    e,
			removing: true,
		})
	}
	for _, obj := range p.transient {
		items = append(items, dropItem{obj: obj, entry: p.entries[obj.Key()]})
	}
	for _, obj := range p.alterOthers {
		items = append(items, dropItem{obj: obj, entry: p.entries[obj.Key()]})
	}
	if len(items) == 0 {
		return nil
	}

	// Ascending registry order is the declaration order fed to the
	// resolver, so objects the graph does not constrain drop in reverse
	// install order.
	sort.SliceStable(items, func(a, b int) bool {
		return items[a].entry.OrderIndex < items[b].entry.OrderIndex
	})

	objs := make([]*schema.Object, len(items))
	byKey := make(map[string]dropItem, len(items))
	for idx, item := range items {
		objs[idx] = item.obj
		byKey[objectKey(item.obj)] = item
	}

	ordered, err := resolver.Order(objs, resolver.Uninstall)
	if err != nil {
		return err
	}

	for _, obj := range ordered {
		item := byKey[objectKey(obj)]
		entry := item.entry
		if !item.removing {
			entry = nil // recreated later; registry entry stays
		}
		if err := i.dropObject(ctx, reg, obj, entry); err != nil {
			return err
		}
	}
	return nil
}

// executeTableAlters applies the planned in-place table changes and updates
// each table's registry signature.
func (i *Installer) executeTableAlters(ctx context.Context, reg *registry.Registry, p *plan) error {
	for _, table := range p.alterTables {
		for _, stmt := range p.alterStmts[table.Key()] {
			if err := i.exec(ctx, stmt); err != nil {
				return err
			}
		}
		err := reg.Update(ctx, &registry.Entry{
			Name:       table.Name,
			Type:       table.Type,
			Signature:  table.Signature,
			OrderIndex: p.position[table.Key()],
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// executeCreates installs new objects and recreates dropped dependents and
// changed non-table objects in dependency order.
func (i *Installer) executeCreates(ctx context.Context, reg *registry.Registry, p *plan) error {
	addKeys := make(map[string]bool, len(p.toAdd))
	for _, obj := range p.toAdd {
		addKeys[obj.Key()] = true
	}
	alterKeys := make(map[string]bool, len(p.alterOthers))
	for _, obj := range p.alterOthers {
		alterKeys[obj.Key()] = true
	}

	// Filter in declaration order so the resolver tie-break is stable.
	var createSet []*schema.Object
	for _, obj := range p.objects {
		if addKeys[obj.Key()] || alterKeys[obj.Key()] || p.transient[obj.Key()] != nil {
			createSet = append(createSet, obj)
		}
	}
	if len(createSet) == 0 {
		return nil
	}

	ordered, err := resolver.Order(createSet, resolver.Install)
	if err != nil {
		return err
	}

	for _, obj := range ordered {
		if err := i.exec(ctx, obj.Sql); err != nil {
			return err
		}

		entry := &registry.Entry{
			Name:       obj.Name,
			Type:       obj.Type,
			Signature:  obj.Signature,
			OrderIndex: p.position[obj.Key()],
		}
		if addKeys[obj.Key()] {
			err = reg.Add(ctx, entry)
		} else {
			err = reg.Update(ctx, entry)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// syncKeepOrder refreshes the stored install position of untouched objects
// when other changes shifted the sequence. No DDL is involved.
func (i *Installer) syncKeepOrder(ctx context.Context, reg *registry.Registry, p *plan) error {
	for _, obj := range p.keep {
		if p.transient[obj.Key()] != nil {
			continue // already rewritten during recreation
		}
		entry := p.entries[obj.Key()]
		pos := p.position[obj.Key()]
		if entry.OrderIndex == pos {
			continue
		}
		err := reg.Update(ctx, &registry.Entry{
			Name:       obj.Name,
			Type:       obj.Type,
			Signature:  obj.Signature,
			OrderIndex: pos,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// dropObject executes the drop for one object and, when entry is non-nil,
// removes its registry entry immediately after success.
func (i *Installer) dropObject(ctx context.Context, reg *registry.Registry, obj *schema.Object, entry *registry.Entry) error {
	sql, err := schema.DropStatement(obj.Name, obj.Type)
	if err != nil {
		return err
	}
	if err := i.exec(ctx, sql); err != nil {
		return err
	}
	if entry != nil {
		return reg.Remove(ctx, entry)
	}
	return nil
}

// exec runs one DDL statement, wrapping failures as DbExecutionError.
func (i *Installer) exec(ctx context.Context, sql string) error {
	i.log.DebugContext(ctx, "executing", "sql", sql)
	if err := i.conn.Exec(ctx, sql); err != nil {
		return &DbExecutionError{Sql: sql, Err: err}
	}
	return nil
}

// transitiveDependents returns every object in the working set that depends,
// directly or through other objects, on the named root.
func transitiveDependents(objects []*schema.Object, root string) []*schema.Object {
	affected := map[string]bool{root: true}
	added := make(map[string]bool)
	var out []*schema.Object

	for changed := true; changed; {
		changed = false
		for _, obj := range objects {
			if added[obj.Key()] || obj.Name == root {
				continue
			}
			for _, dep := range obj.Dependencies {
				if affected[dep] {
					affected[obj.Name] = true
					added[obj.Key()] = true
					out = append(out, obj)
					changed = true
					break
				}
			}
		}
	}
	return out
}

func objectKey(obj *schema.Object) string {
	return obj.Key()
}

func entryMap(entries []*registry.Entry) map[string]*registry.Entry {
	m := make(map[string]*registry.Entry, len(entries))
	for _, e := range entries {
		m[e.Name+"|"+string(e.Type)] = e
	}
	return m
}
