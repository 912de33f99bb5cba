// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linop

// BlockDiag is a block-diagonal matrix. A batched operator is a BlockDiag
// whose blocks share their order.
type BlockDiag struct {
	base
	blocks  []Operator
	offs    []int // offs[i] is the first row of block i, offs[len] the size.
	batched bool
}

// NewBlockDiag returns the block-diagonal operator with the given blocks.
func NewBlockDiag(blocks ...Operator) (*BlockDiag, error) {
	if len(blocks) == 0 {
		return nil, shapeError("NewBlockDiag", "no blocks")
	}
	offs := make([]int, len(blocks)+1)
	for i, b := range blocks {
		if b.Shape().Batch != 1 {
			return nil, shapeError("NewBlockDiag", "block %d is batched (%v)", i, b.Shape())
		}
		offs[i+1] = offs[i] + b.Size()
	}
	return &BlockDiag{blocks: append([]Operator(nil), blocks...), offs: offs}, nil
}

// Batched returns a batch of operators of a common order N. The result has
// Shape{Batch: len(ops), N: N} and acts on right-hand sides whose rows
// b*N ... b*N+N-1 belong to batch entry b.
func Batched(ops ...Operator) (*BlockDiag, error) {
	bd, err := NewBlockDiag(ops...)
	if err != nil {
		return nil, err
	}
	n := ops[0].Size()
	for i, op := range ops {
		if op.Size() != n {
			return nil, shapeError("Batched", "entry %d has order %d, want %d", i, op.Size(), n)
		}
	}
	bd.batched = true
	return bd, nil
}

func (b *BlockDiag) Kind() Kind { return KindBlockDiag }
func (b *BlockDiag) Size() int  { return b.offs[len(b.blocks)] }
func (b *BlockDiag) Shape() Shape {
	if b.batched {
		return Shape{Batch: len(b.blocks), N: b.blocks[0].Size()}
	}
	return plain(b.Size())
}
func (b *BlockDiag) Symmetric() bool {
	for _, blk := range b.blocks {
		if !blk.Symmetric() {
			return false
		}
	}
	return true
}

// Blocks returns the blocks.
func (b *BlockDiag) Blocks() []Operator { return append([]Operator(nil), b.blocks...) }

// Offset returns the first row of block i.
func (b *BlockDiag) Offset(i int) int { return b.offs[i] }
