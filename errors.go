/*
 * Copyright 2021 ByteDance Inc.
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

package heapopt

import (
    `fmt`
)

// VerifyError occures when the graph fails structural verification
// before any pass runs.
type VerifyError struct {
    Reason error
}

func (self *VerifyError) Error() string {
    return fmt.Sprintf("VerifyError: %v", self.Reason)
}

func (self *VerifyError) Unwrap() error {
    return self.Reason
}

// PassError occures when an optimization pass panics. The graph may
// have been partially rewritten and should be discarded.
type PassError struct {
    Pass  string
    Cause interface{}
}

func (self *PassError) Error() string {
    return fmt.Sprintf("PassError(%s): %v", self.Pass, self.Cause)
}
