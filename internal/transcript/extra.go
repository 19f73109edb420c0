package transcript

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"
)

// 每个结构体类型的json字段名，Extra本身(json:"-")不在其中
var knownKeysCache sync.Map

func knownKeys(t reflect.Type) map[string]struct{} {
	if cached, ok := knownKeysCache.Load(t); ok {
		return cached.(map[string]struct{})
	}
	keys := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = field.Name
		}
		keys[name] = struct{}{}
	}
	knownKeysCache.Store(t, keys)
	return keys
}

// decodeWithExtra 把data解码到fields(一个没有自定义方法的结构体指针)，
// 返回fields未声明的键。没有多余字段时返回nil
func decodeWithExtra(data []byte, fields any) (map[string]json.RawMessage, error) {
	if err := json.Unmarshal(data, fields); err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for key := range knownKeys(reflect.TypeOf(fields).Elem()) {
		delete(all, key)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// encodeWithExtra 编码fields并写回extra中的字段，同名时以fields为准
func encodeWithExtra(fields any, extra map[string]json.RawMessage) ([]byte, error) {
	encoded, err := json.Marshal(fields)
	if err != nil || len(extra) == 0 {
		return encoded, err
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, err
	}
	for key, value := range extra {
		if _, ok := out[key]; !ok {
			out[key] = value
		}
	}
	return json.Marshal(out)
}
