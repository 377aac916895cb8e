package engine

import "github.com/opd-ai/vpe/surface"

// infoQueue is a FIFO of buffer infos.
type infoQueue []surface.BufferInfo

func (q *infoQueue) push(info surface.BufferInfo) {
	*q = append(*q, info)
}

func (q *infoQueue) pushFront(info surface.BufferInfo) {
	*q = append(*q, surface.BufferInfo{})
	copy((*q)[1:], *q)
	(*q)[0] = info
}

func (q *infoQueue) peek() (surface.BufferInfo, bool) {
	if len(*q) == 0 {
		return surface.BufferInfo{}, false
	}
	return (*q)[0], true
}

func (q *infoQueue) pop() (surface.BufferInfo, bool) {
	if len(*q) == 0 {
		return surface.BufferInfo{}, false
	}
	info := (*q)[0]
	(*q)[0] = surface.BufferInfo{}
	*q = (*q)[1:]
	return info, true
}

// remove takes the entry holding buf out of the queue. Entries match on the
// sequence number and on buffer identity.
func (q *infoQueue) remove(buf *surface.Buffer) (surface.BufferInfo, bool) {
	for i, info := range *q {
		if sameBuffer(info, buf) {
			*q = append((*q)[:i], (*q)[i+1:]...)
			return info, true
		}
	}
	return surface.BufferInfo{}, false
}

func (q *infoQueue) drain() []surface.BufferInfo {
	items := *q
	*q = nil
	return items
}

func (q infoQueue) len() int {
	return len(q)
}

func sameBuffer(info surface.BufferInfo, buf *surface.Buffer) bool {
	return buf != nil && info.SeqNum() == buf.SeqNum() && info.Buffer == buf
}

// bufferQueueSet holds every buffer the engine owns.
//
// consumer is guarded by Engine.consumerMu, everything else by Engine.bufferMu.
// A buffer lives in exactly one of consumer, producer, render, flush or attach.
// attached is an index over consumer-origin buffers that currently sit in the
// output surface (bypass); such a buffer may also be in render or flush.
type bufferQueueSet struct {
	consumer infoQueue

	producer infoQueue
	render   map[uint32]surface.BufferInfo
	flush    infoQueue
	attach   infoQueue
	attached map[uint32]surface.BufferInfo
}

func newBufferQueueSet() *bufferQueueSet {
	return &bufferQueueSet{
		render:   make(map[uint32]surface.BufferInfo),
		attached: make(map[uint32]surface.BufferInfo),
	}
}

// isAttached reports whether buf is a bypassed consumer buffer.
func (s *bufferQueueSet) isAttached(buf *surface.Buffer) bool {
	info, ok := s.attached[buf.SeqNum()]
	return ok && sameBuffer(info, buf)
}

// takeAttached removes buf from the attached index and reports whether it was there.
func (s *bufferQueueSet) takeAttached(buf *surface.Buffer) bool {
	if !s.isAttached(buf) {
		return false
	}
	delete(s.attached, buf.SeqNum())
	return true
}

// takeRender removes and returns the render-pending entry for index.
func (s *bufferQueueSet) takeRender(index uint32) (surface.BufferInfo, bool) {
	info, ok := s.render[index]
	if ok {
		delete(s.render, index)
	}
	return info, ok
}

// drainRender empties the render-pending map.
func (s *bufferQueueSet) drainRender() []surface.BufferInfo {
	items := make([]surface.BufferInfo, 0, len(s.render))
	for _, info := range s.render {
		items = append(items, info)
	}
	s.render = make(map[uint32]surface.BufferInfo)
	return items
}

// splitBypass separates consumer-origin buffers from output buffers and drops
// them from the attached index.
func (s *bufferQueueSet) splitBypass(items []surface.BufferInfo) (output, bypass []surface.BufferInfo) {
	for _, info := range items {
		if info.Buffer != nil && s.takeAttached(info.Buffer) {
			bypass = append(bypass, info)
			continue
		}
		output = append(output, info)
	}
	return output, bypass
}
