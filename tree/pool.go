package tree

import "github.com/groveml/grove/dataset"

// classListPool recycles partition buffers during single-goroutine,
// depth-first tree construction. A buffer handed out by Get is returned with
// Put once the subtree built from it is complete, so at most one buffer per
// depth level per path is live at a time. Not safe for concurrent use.
type classListPool struct {
	free [][]dataset.ClassSample
}

func (p *classListPool) Get() []dataset.ClassSample {
	if n := len(p.free); n > 0 {
		buf := p.free[n-1]
		p.free = p.free[:n-1]
		return buf
	}
	return nil
}

func (p *classListPool) Put(buf []dataset.ClassSample) {
	p.free = append(p.free, buf[:0])
}

// regListPool is the regression counterpart of classListPool.
type regListPool struct {
	free [][]dataset.RegSample
}

func (p *regListPool) Get() []dataset.RegSample {
	if n := len(p.free); n > 0 {
		buf := p.free[n-1]
		p.free = p.free[:n-1]
		return buf
	}
	return nil
}

func (p *regListPool) Put(buf []dataset.RegSample) {
	p.free = append(p.free, buf[:0])
}
