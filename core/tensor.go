package core

import "fmt"

// Number 是张量元素类型约束。
type Number interface {
	~int32 | ~int64 | ~float32 | ~float64
}

// Tensor 是定长、行优先（row-major）存储的多维数组。
// 所有形状在启动时由配置确定，因此使用扁平切片 + 显式 Shape，而不是动态嵌套切片。
//
// JSON 格式：{"shape": [1, 10, 2], "data": [...]}
type Tensor[T Number] struct {
	Shape []int `json:"shape"`
	Data  []T   `json:"data"`
}

// NewTensor 按形状创建全零张量。
func NewTensor[T Number](shape ...int) Tensor[T] {
	s := make([]int, len(shape))
	copy(s, shape)
	return Tensor[T]{Shape: s, Data: make([]T, shapeSize(s))}
}

func shapeSize(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		if d < 0 {
			d = 0
		}
		n *= d
	}
	return n
}

// Size 返回元素总数。
func (t Tensor[T]) Size() int {
	return shapeSize(t.Shape)
}

// Offset 计算前缀下标对应的扁平偏移。idx 可以少于维度数，剩余维度视为 0。
func (t Tensor[T]) Offset(idx ...int) int {
	if len(idx) > len(t.Shape) {
		panic(fmt.Sprintf("tensor: %d indices for %d dims", len(idx), len(t.Shape)))
	}
	off := 0
	for i, d := range t.Shape {
		off *= d
		if i < len(idx) {
			if idx[i] < 0 || idx[i] >= d {
				panic(fmt.Sprintf("tensor: index %d out of range [0,%d) at dim %d", idx[i], d, i))
			}
			off += idx[i]
		}
	}
	return off
}

// At 返回完整下标处的元素。
func (t Tensor[T]) At(idx ...int) T {
	return t.Data[t.Offset(idx...)]
}

// Row 返回前缀下标所选中的连续子切片（与底层数据共享存储）。
// 例如 shape=[1,H,K] 时 Row(0, i) 返回第 i 个时间步的 K 个值。
func (t Tensor[T]) Row(idx ...int) []T {
	start := t.Offset(idx...)
	n := 1
	for _, d := range t.Shape[len(idx):] {
		n *= d
	}
	return t.Data[start : start+n]
}

// Valid 检查 Data 长度与 Shape 是否一致。
func (t Tensor[T]) Valid() bool {
	return len(t.Shape) > 0 && len(t.Data) == shapeSize(t.Shape)
}
