package pattern

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"rayven/internal/logger"
	"rayven/internal/types"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// templateFileSchema 校验模板文件结构：patterns 下每项是 {prior, tier, enabled}。
const templateFileSchema = `{
  "type": "object",
  "properties": {
    "patterns": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "prior":   {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
          "tier":    {"type": "string", "enum": ["low", "medium", "high"]},
          "enabled": {"type": "boolean"}
        },
        "required": ["prior", "tier"],
        "additionalProperties": false
      }
    }
  },
  "required": ["patterns"]
}`

type templateFile struct {
	Patterns map[string]Template `yaml:"patterns"`
}

// ChangeListener 在模板热更后触发。
type ChangeListener func(map[types.Pattern]Template)

// Registry 管理形态模板文件：启动时加载校验，文件变更时热更。
type Registry struct {
	path   string
	v      *viper.Viper
	schema *jsonschema.Schema

	mu        sync.RWMutex
	loadedAt  time.Time
	version   int64
	templates map[types.Pattern]Template
	listeners []ChangeListener
}

// NewRegistry 读取模板文件并监听更新。
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("pattern registry requires path")
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("patterns.json", strings.NewReader(templateFileSchema)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile("patterns.json")
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	r := &Registry{path: path, v: v, schema: schema}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("pattern template reload failed: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Templates 返回当前模板快照。
func (r *Registry) Templates() map[types.Pattern]Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[types.Pattern]Template, len(r.templates))
	for p, t := range r.templates {
		out[p] = t
	}
	return out
}

// OnChange 注册热更回调。
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read pattern templates: %w", err)
	}
	var generic map[string]interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("parse pattern templates: %w", err)
	}
	if err := r.validateSchema(generic); err != nil {
		return fmt.Errorf("pattern templates schema: %w", err)
	}
	var cfg templateFile
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("decode pattern templates: %w", err)
	}
	templates := make(map[types.Pattern]Template, len(cfg.Patterns))
	for name, tpl := range cfg.Patterns {
		p := types.Pattern(strings.TrimSpace(name))
		if !p.Valid() {
			logger.Warnf("pattern template 跳过未知形态 %q", name)
			continue
		}
		templates[p] = tpl
	}
	r.mu.Lock()
	r.templates = templates
	r.version++
	r.loadedAt = time.Now()
	r.mu.Unlock()
	logger.Infof("pattern registry loaded %d templates from %s", len(templates), filepath.Base(r.path))
	return nil
}

// validateSchema 把 YAML 树转 JSON 后按 schema 校验。
func (r *Registry) validateSchema(doc map[string]interface{}) error {
	buf, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var jsonDoc interface{}
	if err := json.Unmarshal(buf, &jsonDoc); err != nil {
		return err
	}
	return r.schema.Validate(jsonDoc)
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := make(map[types.Pattern]Template, len(r.templates))
	for p, t := range r.templates {
		snap[p] = t
	}
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Errorf("pattern template listener panic: %v", rec)
				}
			}()
			cb(snap)
		}(fn)
	}
}
