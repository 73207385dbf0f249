// Copyright (c) 2024 The Bioarchive Project and its Contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package publish

import "fmt"

// This error type is returned when a pre-flight health check fails for a
// service the workflow publishes to.
type UnhealthyServiceError struct {
	Service string
	Err     error
}

func (e UnhealthyServiceError) Error() string {
	return fmt.Sprintf("The %s service did not pass its health check: %s",
		e.Service, e.Err.Error())
}

func (e UnhealthyServiceError) Unwrap() error {
	return e.Err
}

// indicates a submission whose rems block is missing or malformed while its
// workflow publishes to the access-management service
type RemsConfigError struct {
	Message string
}

func (e RemsConfigError) Error() string {
	return fmt.Sprintf("The submission's rems block is unusable: %s", e.Message)
}

// indicates an object that reached a registration step without a DOI
type MissingDOIError struct {
	ObjectId string
}

func (e MissingDOIError) Error() string {
	return fmt.Sprintf("Object %s has no DOI to register.", e.ObjectId)
}
