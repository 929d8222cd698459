package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sysu-ecnc-dev/seat-planner/backend/internal/solver"
)

// FileSink 把检查点和最终结果写成 JSON 和 .dot 文件
type FileSink struct {
	dir string
}

func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

func (s *FileSink) Checkpoint(ctx context.Context, snap *solver.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	base := fmt.Sprintf("run-%s-gen-%06d", snap.RunID, snap.Generation)
	// 检查点文件与最终结果文件格式相同，只写当前最优解
	return s.write(base, snap.Population.Best, Graph{Name: base, Blocks: snap.Layout})
}

func (s *FileSink) Complete(ctx context.Context, result *solver.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	base := fmt.Sprintf("solution-%s", result.RunID)
	return s.write(base, result.Best, Graph{Name: base, Blocks: result.Layout})
}

func (s *FileSink) write(base string, v any, g Graph) error {
	return errors.Join(
		writeFile(filepath.Join(s.dir, base+".json"), func(w io.Writer) error { return WriteAssignments(w, v) }),
		writeFile(filepath.Join(s.dir, base+".dot"), func(w io.Writer) error { return WriteDot(w, g) }),
	)
}

// writeFile 先写临时文件再重命名，中断时不会留下写了一半的文件
func writeFile(path string, fn func(w io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if err := fn(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("写入 %s 失败: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, path)
}
