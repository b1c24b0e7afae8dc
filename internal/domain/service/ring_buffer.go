package service

// ringBuffer хранит последние capacity значений ряда, вытесняя самые старые (FIFO).
// Не потокобезопасен: доступ сериализуется блокировкой ряда.
type ringBuffer struct {
	data  []float64
	start int
	size  int
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &ringBuffer{data: make([]float64, capacity)}
}

// Push добавляет значение; при заполнении перезаписывает самое старое
func (r *ringBuffer) Push(v float64) {
	capacity := len(r.data)
	if r.size < capacity {
		r.data[(r.start+r.size)%capacity] = v
		r.size++
		return
	}
	r.data[r.start] = v
	r.start = (r.start + 1) % capacity
}

func (r *ringBuffer) Len() int {
	return r.size
}

func (r *ringBuffer) Cap() int {
	return len(r.data)
}

// Last возвращает копию последних n значений в порядке поступления
func (r *ringBuffer) Last(n int) []float64 {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return nil
	}

	out := make([]float64, n)
	capacity := len(r.data)
	offset := r.start + r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.data[(offset+i)%capacity]
	}
	return out
}

// Values возвращает копию всей истории в порядке поступления
func (r *ringBuffer) Values() []float64 {
	return r.Last(r.size)
}
