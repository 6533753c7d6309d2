/*
 * Copyright 2022 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package opt

import (
    `strings`

    `github.com/cloudwego/heapopt/hir`
)

// SideEffects is a bit set describing what heap memory an instruction
// may read or write, split by field or array access and by slot type,
// plus whether it can trigger garbage collection. Slot types collapse
// onto their signed form so a signed read meets an unsigned write of
// the same slot. Block and loop summaries are unions of their
// instructions.
type SideEffects uint64

const (
    _SeTypes      = 10
    _SeFieldWrite = 0
    _SeArrayWrite = _SeFieldWrite + _SeTypes
    _SeFieldRead  = _SeArrayWrite + _SeTypes
    _SeArrayRead  = _SeFieldRead + _SeTypes
    _SeCanGC      = _SeArrayRead + _SeTypes
    _SeDependsGC  = _SeCanGC + 1
)

const (
    _SeAllWrites SideEffects = (1 << _SeFieldRead) - 1
    _SeAllReads  SideEffects = ((1 << _SeCanGC) - 1) &^ _SeAllWrites
)

func NoEffects() SideEffects {
    return 0
}

func AllEffects() SideEffects {
    return _SeAllWrites | _SeAllReads | (1 << _SeCanGC) | (1 << _SeDependsGC)
}

func FieldWriteOfType(ty hir.Type) SideEffects {
    return 1 << (_SeFieldWrite + SideEffects(ty.ToSigned()))
}

func ArrayWriteOfType(ty hir.Type) SideEffects {
    return 1 << (_SeArrayWrite + SideEffects(ty.ToSigned()))
}

func FieldReadOfType(ty hir.Type) SideEffects {
    return 1 << (_SeFieldRead + SideEffects(ty.ToSigned()))
}

func ArrayReadOfType(ty hir.Type) SideEffects {
    return 1 << (_SeArrayRead + SideEffects(ty.ToSigned()))
}

func GCTrigger() SideEffects {
    return 1 << _SeCanGC
}

func (self SideEffects) Union(o SideEffects) SideEffects {
    return self | o
}

func (self SideEffects) DoesAnyWrite() bool {
    return self & _SeAllWrites != 0
}

func (self SideEffects) DoesAnyRead() bool {
    return self & _SeAllReads != 0
}

func (self SideEffects) CanTriggerGC() bool {
    return self & (1 << _SeCanGC) != 0
}

// MayDependOn reports whether the reads of self can observe the writes
// of o: a read depends on a write of the same kind and slot type, and
// anything GC moves depends on a GC trigger.
func (self SideEffects) MayDependOn(o SideEffects) bool {
    if self & (1 << _SeDependsGC) != 0 && o.CanTriggerGC() {
        return true
    }
    reads := (self & _SeAllReads) >> (_SeFieldRead - _SeFieldWrite)
    return o & reads != 0
}

var _SeSections = [...]struct {
    tag string
    off uint
}{
    { tag: "FW", off: _SeFieldWrite },
    { tag: "AW", off: _SeArrayWrite },
    { tag: "FR", off: _SeFieldRead  },
    { tag: "AR", off: _SeArrayRead  },
}

func (self SideEffects) String() string {
    var sb strings.Builder
    for _, s := range _SeSections {
        mask := (self >> s.off) & ((1 << _SeTypes) - 1)
        if mask == 0 {
            continue
        }
        sb.WriteString(s.tag)
        sb.WriteString("[")
        for ty := hir.Bool; ty <= hir.Ref; ty++ {
            if mask & (1 << ty) != 0 {
                sb.WriteString(ty.String())
                sb.WriteString(" ")
            }
        }
        sb.WriteString("]")
    }
    if self.CanTriggerGC() {
        sb.WriteString("GC")
    }
    if sb.Len() == 0 {
        return "none"
    }
    return sb.String()
}

// EffectsOf summarizes one instruction. Volatile accesses order against
// every other access, so they come back as full barriers.
func EffectsOf(p hir.Instruction) SideEffects {
    switch v := p.(type) {
        case *hir.FieldGet: {
            if v.F.Volatile {
                return AllEffects()
            }
            return FieldReadOfType(v.F.Type)
        }

        case *hir.FieldSet: {
            if v.F.Volatile {
                return AllEffects()
            }
            return FieldWriteOfType(v.F.Type)
        }

        case *hir.ArrayGet    : return ArrayReadOfType(v.AccessType())
        case *hir.VecLoad     : return ArrayReadOfType(v.AccessType())
        case *hir.ArraySet    : return ArrayWriteOfType(v.AccessType())
        case *hir.VecStore    : return ArrayWriteOfType(v.AccessType())
        case *hir.Invoke      : return AllEffects()
        case *hir.NewInstance : return GCTrigger()
        case *hir.NewArray    : return GCTrigger()
        case *hir.SuspendCheck: return GCTrigger()
        default               : return NoEffects()
    }
}

// Effects caches per-block and per-loop side effect summaries of one
// graph. Loop summaries include every nested block.
type Effects struct {
    blocks map[int]SideEffects
    loops  map[*hir.Loop]SideEffects
}

func ComputeEffects(g *hir.Graph) *Effects {
    ret := &Effects {
        blocks: make(map[int]SideEffects, len(g.Blocks)),
        loops:  make(map[*hir.Loop]SideEffects, len(g.Loops)),
    }
    for _, b := range g.ReversePostOrder() {
        se := NoEffects()
        for _, p := range b.Ins {
            se = se.Union(EffectsOf(p))
        }
        if b.Term != nil {
            se = se.Union(EffectsOf(b.Term))
        }
        ret.blocks[b.Id] = se
        for l := b.Loop; l != nil; l = l.Parent {
            ret.loops[l] = ret.loops[l].Union(se)
        }
    }
    return ret
}

func (self *Effects) BlockEffects(b *hir.BasicBlock) SideEffects {
    return self.blocks[b.Id]
}

func (self *Effects) LoopEffects(l *hir.Loop) SideEffects {
    return self.loops[l]
}
