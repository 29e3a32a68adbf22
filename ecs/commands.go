package ecs

import "unsafe"

// Commands buffers structural operations issued while the world is deferred.
// Operations are applied in the order they were issued by the outermost
// DeferEnd, so a later Set observes an earlier Add of the same entity.
type Commands struct {
	ops []command
}

type commandKind uint8

const (
	cmdAdd commandKind = iota
	cmdRemove
	cmdSet
	cmdDelete
	cmdDefer
)

type command struct {
	kind   commandKind
	entity Id
	id     Id
	value  unsafe.Pointer
	info   *ComponentInfo
	fn     func()
}

func newCommands() *Commands {
	return &Commands{}
}

// Len returns the number of queued operations
func (c *Commands) Len() int {
	return len(c.ops)
}

func (c *Commands) add(entity, id Id) {
	c.ops = append(c.ops, command{kind: cmdAdd, entity: entity, id: id})
}

func (c *Commands) remove(entity, id Id) {
	c.ops = append(c.ops, command{kind: cmdRemove, entity: entity, id: id})
}

// set queues a private copy of a value. Ownership of value moves to the queue.
func (c *Commands) set(entity, id Id, value unsafe.Pointer, info *ComponentInfo) {
	c.ops = append(c.ops, command{kind: cmdSet, entity: entity, id: id, value: value, info: info})
}

func (c *Commands) delete(entity Id) {
	c.ops = append(c.ops, command{kind: cmdDelete, entity: entity})
}

func (c *Commands) deferFn(fn func()) {
	c.ops = append(c.ops, command{kind: cmdDefer, fn: fn})
}

// Flush applies every queued operation to the world, resetting the buffer.
// Operations on entities deleted in the meantime are dropped.
func (c *Commands) Flush(w *World) {
	for i := 0; i < len(c.ops); i++ {
		cmd := c.ops[i]
		switch cmd.kind {
		case cmdAdd:
			if w.IsAlive(cmd.entity) {
				w.Add(cmd.entity, cmd.id)
			}
		case cmdRemove:
			w.Remove(cmd.entity, cmd.id)
		case cmdSet:
			if w.IsAlive(cmd.entity) {
				w.Add(cmd.entity, cmd.id)
				w.write(w.mustRecord(cmd.entity, "Set"), cmd.id, cmd.value, true)
			}
			cmd.info.destroy(cmd.value)
		case cmdDelete:
			w.Delete(cmd.entity)
		case cmdDefer:
			cmd.fn()
		}
	}

	clear(c.ops)
	c.ops = c.ops[:0]
}

// DeferBegin enters deferred mode. Calls nest; only the outermost DeferEnd
// applies the queued operations.
func (w *World) DeferBegin() {
	w.deferDepth++
}

// DeferEnd leaves deferred mode, flushing the queue when leaving the outermost level
func (w *World) DeferEnd() {
	if w.deferDepth == 0 {
		panic("ecs: DeferEnd called without matching DeferBegin")
	}
	w.deferDepth--
	if w.deferDepth == 0 {
		w.commands.Flush(w)
	}
}

// IsDeferred reports whether structural operations are currently queued
func (w *World) IsDeferred() bool {
	return w.deferDepth > 0
}

// Defer runs fn at the next flush when the world is deferred, immediately otherwise
func (w *World) Defer(fn func()) {
	if w.deferDepth > 0 {
		w.commands.deferFn(fn)
		return
	}
	fn()
}

// DeferSuspend runs fn with deferred mode temporarily lifted, so its operations
// apply immediately. Used for one-shot bookkeeping such as creating components.
func (w *World) DeferSuspend(fn func()) {
	depth := w.deferDepth
	w.deferDepth = 0
	defer func() {
		w.deferDepth = depth
	}()
	fn()
}

// Commands returns the deferred operation queue of the world
func (w *World) Commands() *Commands {
	return w.commands
}
