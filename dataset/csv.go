// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// DefaultHeader is written at the top of generated rating files.
const DefaultHeader = "user,item,rating"

func splitFields(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ';'
	})
}

// ReadCSV parses ratings from lines of "user,item,rating[,...]". Fields are separated
// by ',' or ';' and extra columns are ignored. If hasHeader is set, the first line is skipped.
func ReadCSV(r io.Reader, hasHeader bool) ([]Rating, error) {
	var ratings []Rating
	sc := bufio.NewScanner(r)
	lineNumber := 0
	for sc.Scan() {
		lineNumber++
		if lineNumber == 1 && hasHeader {
			continue
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := splitFields(line)
		if len(fields) < 3 {
			return nil, errors.NotValidf("line %d: expect at least 3 fields but got %d", lineNumber, len(fields))
		}
		userId, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
		if err != nil {
			return nil, errors.Annotatef(err, "line %d: invalid user id", lineNumber)
		}
		itemId, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
		if err != nil {
			return nil, errors.Annotatef(err, "line %d: invalid item id", lineNumber)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if err != nil {
			return nil, errors.Annotatef(err, "line %d: invalid rating", lineNumber)
		}
		ratings = append(ratings, Rating{UserId: userId, ItemId: itemId, Value: value})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	return ratings, nil
}

// LoadCSV loads a dataset from a rating file.
func LoadCSV(path string, hasHeader bool) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer f.Close()
	ratings, err := ReadCSV(f, hasHeader)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to read %s", path)
	}
	return NewDatasetFromRatings(ratings), nil
}

// WriteCSV writes ratings separated by ','. The header is omitted if empty.
func WriteCSV(w io.Writer, header string, ratings []Rating) error {
	bw := bufio.NewWriter(w)
	if header != "" {
		if _, err := fmt.Fprintln(bw, header); err != nil {
			return errors.Trace(err)
		}
	}
	for _, r := range ratings {
		if _, err := fmt.Fprintf(bw, "%d,%d,%s\n", r.UserId, r.ItemId,
			strconv.FormatFloat(r.Value, 'f', -1, 64)); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(bw.Flush())
}

// SaveCSV writes ratings into a file.
func SaveCSV(path, header string, ratings []Rating) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	if err = WriteCSV(f, header, ratings); err != nil {
		_ = f.Close()
		return errors.Trace(err)
	}
	return errors.Trace(f.Close())
}
