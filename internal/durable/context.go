package durable

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Context — replay-safe API orchestration-функции.
//
// Все side-effect'ы функции обязаны проходить через методы Context:
// прямые обращения к time.Now, сети или БД ломают детерминизм replay.
// Каждый метод сверяется с журналом: при replay результат возвращается
// из мемоизированной записи, при живом исполнении эффект выполняется
// и записывается.
type Context struct {
	hostCtx context.Context
	rt      *Runtime
	inst    *instance

	journal []Entry
	cursor  int
}

// InstanceID возвращает ID текущего instance.
func (c *Context) InstanceID() string {
	return c.inst.id.String()
}

// Input возвращает вход orchestration.
func (c *Context) Input() map[string]string {
	return c.inst.input
}

// IsReplaying возвращает true, пока исполнение идёт по журналу.
// Код с видимыми снаружи эффектами (метрики, уведомления) обязан
// проверять этот флаг, чтобы не повторять эффект при каждом replay.
func (c *Context) IsReplaying() bool {
	return c.cursor < len(c.journal)
}

// Log возвращает логгер instance. При replay записи подавляются,
// чтобы каждый переход логировался ровно один раз.
func (c *Context) Log() *slog.Logger {
	if c.IsReplaying() {
		return slog.New(slog.DiscardHandler)
	}
	return c.rt.logger.With("instance_id", c.inst.id.String())
}

// CallEntity выполняет операцию durable entity.
//
// Результат мемоизируется: при replay операция не выполняется повторно,
// возвращается записанное значение. Ошибка entity — инфраструктурная,
// не мемоизируется и валит instance.
func (c *Context) CallEntity(entity, key, op string, input any) (any, error) {
	name := entity + "/" + key + "/" + op

	if e, ok := c.next(EntryEntity, name); ok {
		return e.Value, nil
	}

	result, err := c.rt.entities.Call(c.hostCtx, entity, key, op, input)
	if err != nil {
		if c.hostCtx.Err() != nil {
			return nil, ErrShutdown
		}
		return nil, fmt.Errorf("call entity %s: %w", name, err)
	}

	c.record(Entry{Kind: EntryEntity, Name: name, Value: result})
	return result, nil
}

// CallActivity выполняет activity с данным входом.
//
// И результат, и ошибка мемоизируются: упавшая activity при replay
// возвращает ту же ошибку без повторного вызова. Ошибка возвращается
// как *ActivityError с исходным сообщением.
func (c *Context) CallActivity(name string, input map[string]any) (map[string]any, error) {
	if e, ok := c.next(EntryActivity, name); ok {
		if e.Failed {
			return nil, &ActivityError{Activity: name, Message: e.Err}
		}
		return e.mapValue(), nil
	}

	output, err := c.rt.activities.Invoke(c.hostCtx, name, input)
	if err != nil {
		// Прерывание остановкой хоста — не сбой activity: запись
		// в журнал не делается, после рестарта activity перезапустится.
		if c.hostCtx.Err() != nil {
			return nil, ErrShutdown
		}
		c.record(Entry{Kind: EntryActivity, Name: name, Failed: true, Err: err.Error()})
		return nil, &ActivityError{Activity: name, Message: err.Error()}
	}

	c.record(Entry{Kind: EntryActivity, Name: name, Value: output})
	return output, nil
}

// CreateTimer приостанавливает instance до вычисленного момента
// срабатывания.
//
// Момент срабатывания мемоизируется до начала ожидания: процесс,
// упавший во время ожидания, при replay доспит остаток, а не начнёт
// отсчёт заново. Таймер никогда не срабатывает раньше момента,
// вычисленного при живом исполнении.
func (c *Context) CreateTimer(d time.Duration) error {
	var fireAt time.Time
	if e, ok := c.next(EntryTimer, "timer"); ok {
		ts, err := e.timeValue()
		if err != nil {
			panic(fmt.Errorf("%w: %v", ErrNonDeterministic, err))
		}
		fireAt = ts
	} else {
		fireAt = time.Now().UTC().Add(d)
		c.record(Entry{Kind: EntryTimer, Name: "timer", Value: fireAt})
	}

	remaining := time.Until(fireAt)
	if remaining <= 0 {
		return nil
	}

	select {
	case <-time.After(remaining):
	case <-c.hostCtx.Done():
		return ErrShutdown
	}
	return nil
}

// WaitForExternalEvent приостанавливает instance до внешнего события.
//
// На время ожидания instance переводится в SUSPENDED и персистится:
// после рестарта процесса replay вернёт его в эту же точку ожидания.
// Событие, поднятое до начала ожидания, не теряется (буфер канала).
func (c *Context) WaitForExternalEvent(name string) error {
	if _, ok := c.next(EntryEvent, name); ok {
		return nil
	}

	c.inst.setStatus(InstanceSuspended)
	c.persist()

	select {
	case <-c.inst.eventChannel(name):
	case <-c.hostCtx.Done():
		// Остановка хоста: instance уже персистирован как SUSPENDED,
		// после рестарта replay вернёт его в эту же точку ожидания.
		return ErrShutdown
	}

	c.inst.setStatus(InstanceRunning)
	c.record(Entry{Kind: EntryEvent, Name: name})
	return nil
}

// CurrentTime возвращает детерминированное текущее время: живой вызов
// читает wall clock и мемоизирует его, replay возвращает записанное
// значение. Это единственный разрешённый источник времени внутри
// orchestration-функции.
func (c *Context) CurrentTime() time.Time {
	if e, ok := c.next(EntryTime, "now"); ok {
		ts, err := e.timeValue()
		if err != nil {
			panic(fmt.Errorf("%w: %v", ErrNonDeterministic, err))
		}
		return ts
	}

	now := time.Now().UTC()
	c.record(Entry{Kind: EntryTime, Name: "now", Value: now})
	return now
}

// SetCustomStatus публикует человекочитаемый статус instance
// ("Throttled until ...", "Waiting for circuit ..."). При replay
// статус обновляется в памяти, но не персистится повторно.
func (c *Context) SetCustomStatus(status string) {
	c.inst.setCustomStatus(status)
	if !c.IsReplaying() {
		c.persist()
	}
}

// ContinueAsNew возвращает сигнальную ошибку перезапуска instance
// с пустым журналом. Orchestration-функция обязана вернуть её
// непосредственно наружу.
func (c *Context) ContinueAsNew() error {
	return ErrContinueAsNew
}

// next потребляет очередную запись журнала при replay.
// Несовпадение вида или имени означает недетерминированную функцию —
// дальнейший replay бессмыслен, instance валится.
func (c *Context) next(kind EntryKind, name string) (*Entry, bool) {
	if c.cursor >= len(c.journal) {
		return nil, false
	}

	e := &c.journal[c.cursor]
	if e.Kind != kind || e.Name != name {
		panic(fmt.Errorf("%w: journal has %s/%s, code expects %s/%s",
			ErrNonDeterministic, e.Kind, e.Name, kind, name))
	}

	c.cursor++
	return e, true
}

// record добавляет запись и персистит журнал.
func (c *Context) record(e Entry) {
	c.journal = append(c.journal, e)
	c.cursor = len(c.journal)
	c.persist()
}

func (c *Context) persist() {
	if err := c.rt.store.Save(c.hostCtx, c.inst.record(c.journal)); err != nil {
		c.rt.logger.Warn("failed to persist instance",
			"instance_id", c.inst.id.String(),
			"error", err,
		)
	}
}
