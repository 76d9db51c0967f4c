package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ungerik/go3d/float64/vec3"

	"github.com/yukistavailable/NeuralTailor/internal/fsutil"
)

// DecodeOBJ reads a Wavefront OBJ mesh: v and f statements only, polygon
// faces fan-triangulated, texture and normal references ignored.
func DecodeOBJ(r io.Reader) (*Mesh, error) {
	m := &Mesh{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("obj line %d: vertex needs 3 coordinates", lineNo)
			}
			var p vec3.T
			for i := 0; i < 3; i++ {
				val, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, fmt.Errorf("obj line %d: %w", lineNo, err)
				}
				p[i] = val
			}
			m.Points = append(m.Points, p)
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("obj line %d: face needs at least 3 vertices", lineNo)
			}
			idx := make([]int, 0, len(fields)-1)
			for _, ref := range fields[1:] {
				i, err := parseFaceRef(ref, len(m.Points))
				if err != nil {
					return nil, fmt.Errorf("obj line %d: %w", lineNo, err)
				}
				idx = append(idx, i)
			}
			for i := 1; i+1 < len(idx); i++ {
				m.Faces = append(m.Faces, [3]int{idx[0], idx[i], idx[i+1]})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// parseFaceRef resolves one face vertex reference (forms i, i/j, i//k and
// negative relative indices) to a 0-based point index.
func parseFaceRef(ref string, nPoints int) (int, error) {
	if cut := strings.IndexByte(ref, '/'); cut >= 0 {
		ref = ref[:cut]
	}
	i, err := strconv.Atoi(ref)
	if err != nil {
		return 0, err
	}
	switch {
	case i > 0 && i <= nPoints:
		return i - 1, nil
	case i < 0 && -i <= nPoints:
		return nPoints + i, nil
	default:
		return 0, fmt.Errorf("face references vertex %d of %d", i, nPoints)
	}
}

// LoadOBJ reads a mesh from an OBJ file.
func LoadOBJ(path string) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := DecodeOBJ(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// EncodeOBJ writes the mesh as OBJ with 1-based face indices.
func EncodeOBJ(w io.Writer, m *Mesh) error {
	bw := bufio.NewWriter(w)
	for _, p := range m.Points {
		if _, err := fmt.Fprintf(bw, "v %g %g %g\n", p[0], p[1], p[2]); err != nil {
			return err
		}
	}
	for _, f := range m.Faces {
		if _, err := fmt.Fprintf(bw, "f %d %d %d\n", f[0]+1, f[1]+1, f[2]+1); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SaveOBJ writes the mesh to path atomically.
func SaveOBJ(path string, m *Mesh) error {
	return fsutil.WriteFileAtomic(path, func(w io.Writer) error {
		return EncodeOBJ(w, m)
	})
}
