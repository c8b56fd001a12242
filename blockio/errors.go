// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package blockio

import "errors"

// ErrLinkTypeMismatch is returned when a strong or weak link's resolved
// target block's type is not the field's declared target type (or a
// descendant of it). Per spec.md §4.5 this aborts the whole load — no
// partial graph is ever exposed to the caller.
var ErrLinkTypeMismatch = errors.New("blockio: link target type mismatch")

// ErrLinkOutOfRange is returned when a link's raw index (other than the
// null sentinel -1) does not address any materialized block.
var ErrLinkOutOfRange = errors.New("blockio: link index out of range")

// ErrCorruptBlock is returned for framing-level problems: a block-type
// index outside the type table, a root index outside the block table, or a
// block count that disagrees with the bytes actually available.
var ErrCorruptBlock = errors.New("blockio: corrupt block section")
