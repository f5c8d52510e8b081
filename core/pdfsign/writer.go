package pdfsign

import (
	"bytes"
	"fmt"
	"sort"
)

type pendingObject struct {
	gen int
	obj Object
}

// update collects new and replaced objects and appends them to the source
// bytes as an incremental update section.
type update struct {
	doc     *Document
	next    int
	objects map[int]pendingObject
}

func newUpdate(doc *Document) *update {
	return &update{doc: doc, next: doc.size, objects: map[int]pendingObject{}}
}

func (u *update) add(o Object) Ref {
	num := u.next
	u.next++
	u.objects[num] = pendingObject{obj: o}
	return Ref{Num: num}
}

// reserve allocates an object number to be filled with set later.
func (u *update) reserve() Ref {
	return u.add(nil)
}

func (u *update) set(ref Ref, o Object) {
	u.objects[ref.Num] = pendingObject{gen: ref.Gen, obj: o}
}

func (u *update) replace(ref Ref, o Object) {
	u.objects[ref.Num] = pendingObject{gen: u.doc.generation(ref.Num), obj: o}
}

func (u *update) bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(len(u.doc.data) + 64*1024)
	buf.Write(u.doc.data)
	if len(u.doc.data) > 0 && u.doc.data[len(u.doc.data)-1] != '\n' {
		buf.WriteByte('\n')
	}

	nums := make([]int, 0, len(u.objects))
	for n := range u.objects {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	offsets := make(map[int]int, len(nums))
	for _, n := range nums {
		p := u.objects[n]
		offsets[n] = buf.Len()
		fmt.Fprintf(&buf, "%d %d obj\n", n, p.gen)
		writeObject(&buf, p.obj)
		buf.WriteString("\nendobj\n")
	}

	xrefOffset := buf.Len()
	buf.WriteString("xref\n")
	for i := 0; i < len(nums); {
		j := i
		for j+1 < len(nums) && nums[j+1] == nums[j]+1 {
			j++
		}
		fmt.Fprintf(&buf, "%d %d\n", nums[i], j-i+1)
		for k := i; k <= j; k++ {
			fmt.Fprintf(&buf, "%010d %05d n \n", offsets[nums[k]], u.objects[nums[k]].gen)
		}
		i = j + 1
	}

	trailer := Dict{}
	for k, v := range u.doc.trailer {
		if k == "Prev" || k == "XRefStm" {
			continue
		}
		trailer[k] = v
	}
	trailer["Size"] = int64(u.next)
	trailer["Prev"] = int64(u.doc.startXref)
	buf.WriteString("trailer\n")
	writeObject(&buf, trailer)
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes()
}
