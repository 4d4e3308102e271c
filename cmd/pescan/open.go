// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/binlens/pescan"
	"github.com/binlens/pescan/internal/filemap"
)

// openView maps path and constructs the Pe view requested on the
// command line (--mapped selects MappedView, the default FileView),
// grounded on the teacher's pe.New(path, opts) entry point.
func openView(path string) (pescan.Pe, func(), error) {
	f, err := filemap.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	closer := func() { f.Close() }

	if mapped {
		v, err := pescan.NewMappedView(f.Bytes())
		if err != nil {
			closer()
			return nil, nil, fmt.Errorf("parsing %s as a mapped image: %w", path, err)
		}
		return v, closer, nil
	}

	v, err := pescan.NewFileView(f.Bytes())
	if err != nil {
		closer()
		return nil, nil, fmt.Errorf("parsing %s as a file image: %w", path, err)
	}
	return v, closer, nil
}
