package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entity — бизнес-сущность внешнего хранилища строк.
//
// Движок не управляет схемой сущностей — он только читает каталог
// (какие свойства есть у сущности и какие связи сконфигурированы),
// чтобы валидировать outputs и строить контекст шаблонов.
type Entity struct {
	// ID — уникальный идентификатор сущности.
	ID uuid.UUID `json:"id"`

	// Name — машинное имя сущности ("product", "article").
	// Используется как ключ при раскрытии связанных строк в контексте.
	Name string `json:"name"`

	// Title — человекочитаемое имя сущности.
	Title string `json:"title,omitempty"`

	// Properties — объявленные свойства сущности.
	Properties []PropertyDef `json:"properties,omitempty"`
}

// PropertyByName ищет свойство по имени. Возвращает nil, если не найдено.
func (e *Entity) PropertyByName(name string) *PropertyDef {
	for i := range e.Properties {
		if e.Properties[i].Name == name {
			return &e.Properties[i]
		}
	}
	return nil
}

// PropertyDef — объявление одного свойства сущности.
type PropertyDef struct {
	// ID — уникальный идентификатор свойства.
	ID uuid.UUID `json:"id"`

	// EntityID — ссылка на сущность.
	EntityID uuid.UUID `json:"entity_id"`

	// Name — имя свойства ("name", "price", "published").
	Name string `json:"name"`

	// Type — тип значения свойства.
	Type PropertyType `json:"type"`

	// Options — допустимые значения для select/multiselect.
	Options []string `json:"options,omitempty"`
}

// Relationship — сконфигурированная связь parent/child между сущностями.
type Relationship struct {
	// ID — уникальный идентификатор связи.
	ID uuid.UUID `json:"id"`

	// ParentEntityID — родительская сущность.
	ParentEntityID uuid.UUID `json:"parent_entity_id"`

	// ChildEntityID — дочерняя сущность.
	ChildEntityID uuid.UUID `json:"child_entity_id"`
}

// Row — одна строка бизнес-сущности во внешнем хранилище.
type Row struct {
	// ID — уникальный идентификатор строки.
	ID uuid.UUID `json:"id"`

	// EntityID — сущность, которой принадлежит строка.
	EntityID uuid.UUID `json:"entity_id"`

	// TenantID — арендатор-владелец строки. Nil — общая строка.
	TenantID *uuid.UUID `json:"tenant_id,omitempty"`

	// Folio — человекочитаемый порядковый номер строки в рамках сущности.
	Folio int64 `json:"folio"`

	// Properties — значения свойств строки по имени свойства.
	Properties map[string]PropertyValue `json:"properties,omitempty"`

	// CreatedBy / UpdatedBy — аудит.
	CreatedBy *uuid.UUID `json:"created_by,omitempty"`
	UpdatedBy *uuid.UUID `json:"updated_by,omitempty"`

	// CreatedAt / UpdatedAt — временные метки.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RowLink — привязка дочерней строки к родительской через связь.
type RowLink struct {
	// RelationshipID — связь, по которой выполнена привязка.
	RelationshipID uuid.UUID `json:"relationship_id"`

	// ParentRowID — родительская строка.
	ParentRowID uuid.UUID `json:"parent_row_id"`
}

// PropertyType — тип значения свойства.
type PropertyType string

const (
	PropertyTypeText        PropertyType = "text"
	PropertyTypeNumber      PropertyType = "number"
	PropertyTypeBoolean     PropertyType = "boolean"
	PropertyTypeDate        PropertyType = "date"
	PropertyTypeSelect      PropertyType = "select"
	PropertyTypeMultiselect PropertyType = "multiselect"
	PropertyTypeMedia       PropertyType = "media"
	PropertyTypeRange       PropertyType = "range"
)

// PropertyValue — типизированное значение свойства.
//
// Тегированный union: заполнено только поле, соответствующее Type.
// Шаблоны получают значение через Plain(), а не сырой JSON.
type PropertyValue struct {
	Type PropertyType

	Text        string
	Number      float64
	Bool        bool
	Date        time.Time
	Select      string
	Multiselect []string
	MediaURL    string
	RangeMin    float64
	RangeMax    float64
}

// Конструкторы значений.

func TextValue(s string) PropertyValue {
	return PropertyValue{Type: PropertyTypeText, Text: s}
}

func NumberValue(n float64) PropertyValue {
	return PropertyValue{Type: PropertyTypeNumber, Number: n}
}

func BoolValue(b bool) PropertyValue {
	return PropertyValue{Type: PropertyTypeBoolean, Bool: b}
}

func DateValue(t time.Time) PropertyValue {
	return PropertyValue{Type: PropertyTypeDate, Date: t}
}

func SelectValue(s string) PropertyValue {
	return PropertyValue{Type: PropertyTypeSelect, Select: s}
}

func MultiselectValue(items []string) PropertyValue {
	return PropertyValue{Type: PropertyTypeMultiselect, Multiselect: items}
}

func MediaValue(url string) PropertyValue {
	return PropertyValue{Type: PropertyTypeMedia, MediaURL: url}
}

func RangeValue(min, max float64) PropertyValue {
	return PropertyValue{Type: PropertyTypeRange, RangeMin: min, RangeMax: max}
}

// Plain возвращает значение в виде обычного Go-типа
// для подстановки в контекст шаблона.
func (v PropertyValue) Plain() any {
	switch v.Type {
	case PropertyTypeText:
		return v.Text
	case PropertyTypeNumber:
		return v.Number
	case PropertyTypeBoolean:
		return v.Bool
	case PropertyTypeDate:
		return v.Date.Format(time.RFC3339)
	case PropertyTypeSelect:
		return v.Select
	case PropertyTypeMultiselect:
		return v.Multiselect
	case PropertyTypeMedia:
		return v.MediaURL
	case PropertyTypeRange:
		return map[string]any{"min": v.RangeMin, "max": v.RangeMax}
	default:
		return nil
	}
}

// propertyValueJSON — envelope для сериализации PropertyValue.
type propertyValueJSON struct {
	Type  PropertyType    `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON сериализует значение как {"type": ..., "value": ...}.
func (v PropertyValue) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(v.Plain())
	if err != nil {
		return nil, err
	}
	return json.Marshal(propertyValueJSON{Type: v.Type, Value: raw})
}

// UnmarshalJSON десериализует значение из {"type": ..., "value": ...}.
func (v *PropertyValue) UnmarshalJSON(data []byte) error {
	var env propertyValueJSON
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	v.Type = env.Type
	switch env.Type {
	case PropertyTypeText:
		return json.Unmarshal(env.Value, &v.Text)
	case PropertyTypeNumber:
		return json.Unmarshal(env.Value, &v.Number)
	case PropertyTypeBoolean:
		return json.Unmarshal(env.Value, &v.Bool)
	case PropertyTypeDate:
		var s string
		if err := json.Unmarshal(env.Value, &s); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("parse date value: %w", err)
		}
		v.Date = t
		return nil
	case PropertyTypeSelect:
		return json.Unmarshal(env.Value, &v.Select)
	case PropertyTypeMultiselect:
		return json.Unmarshal(env.Value, &v.Multiselect)
	case PropertyTypeMedia:
		return json.Unmarshal(env.Value, &v.MediaURL)
	case PropertyTypeRange:
		var r struct {
			Min float64 `json:"min"`
			Max float64 `json:"max"`
		}
		if err := json.Unmarshal(env.Value, &r); err != nil {
			return err
		}
		v.RangeMin, v.RangeMax = r.Min, r.Max
		return nil
	default:
		return fmt.Errorf("unknown property type: %s", env.Type)
	}
}
