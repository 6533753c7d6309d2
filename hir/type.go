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

package hir

// Type is the value type of an instruction result or a memory slot.
type Type uint8

const (
    Void Type = iota
    Bool
    Int8
    Uint16
    Int16
    Int32
    Int64
    Float32
    Float64
    Ref
)

var _TypeNames = [...]string {
    Void    : "void",
    Bool    : "bool",
    Int8    : "i8",
    Uint16  : "u16",
    Int16   : "i16",
    Int32   : "i32",
    Int64   : "i64",
    Float32 : "f32",
    Float64 : "f64",
    Ref     : "ref",
}

func (self Type) String() string {
    if int(self) < len(_TypeNames) {
        return _TypeNames[self]
    } else {
        panic("invalid Type")
    }
}

// ToSigned maps an unsigned type onto the signed type of the same width.
// Memory slots do not distinguish signedness, so heap location lookups
// normalize through this.
func (self Type) ToSigned() Type {
    if self == Uint16 {
        return Int16
    } else {
        return self
    }
}

// IsFloat reports whether the type is a floating point type.
func (self Type) IsFloat() bool {
    return self == Float32 || self == Float64
}
