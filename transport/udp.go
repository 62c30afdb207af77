package transport

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

// UDPConn is the production Conn: a multicast UDP socket bound to a single
// network interface, matching one broadcast session.
type UDPConn struct {
	conn  *net.UDPConn
	pconn *ipv4.PacketConn
	group *net.UDPAddr
}

// Listen opens a UDP socket bound to multicastAddr (e.g. "239.0.0.1:6000")
// and joins the multicast group on ifaceName. If ifaceName is empty, the
// kernel chooses the outgoing interface and no explicit join is attempted
// beyond the default one.
func Listen(multicastAddr, ifaceName string) (*UDPConn, error) {
	group, err := net.ResolveUDPAddr("udp4", multicastAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", multicastAddr, err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: group.Port})
	if err != nil {
		return nil, fmt.Errorf("transport: listen: %w", err)
	}
	if err := conn.SetReadBuffer(1 << 20); err != nil {
		return nil, fmt.Errorf("transport: set read buffer: %w", err)
	}

	pconn := ipv4.NewPacketConn(conn)
	var iface *net.Interface
	if ifaceName != "" {
		iface, err = net.InterfaceByName(ifaceName)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: interface %q: %w", ifaceName, err)
		}
	}
	if err := pconn.JoinGroup(iface, group); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: join group %s: %w", multicastAddr, err)
	}
	if err := pconn.SetMulticastLoopback(true); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: set multicast loopback: %w", err)
	}
	if iface != nil {
		if err := pconn.SetMulticastInterface(iface); err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: set multicast interface: %w", err)
		}
	}

	return &UDPConn{conn: conn, pconn: pconn, group: group}, nil
}

// Broadcast implements Conn.
func (u *UDPConn) Broadcast(b []byte) error {
	_, err := u.conn.WriteToUDP(b, u.group)
	return err
}

// SendTo implements Conn.
func (u *UDPConn) SendTo(b []byte, addr string) error {
	dst, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return fmt.Errorf("transport: resolve %q: %w", addr, err)
	}
	_, err = u.conn.WriteToUDP(b, dst)
	return err
}

// RecvFrom implements Conn.
func (u *UDPConn) RecvFrom(buf []byte) (int, string, error) {
	n, src, err := u.conn.ReadFromUDP(buf)
	if err != nil {
		return 0, "", err
	}
	return n, src.String(), nil
}

// LocalAddr implements Conn.
func (u *UDPConn) LocalAddr() string {
	return u.conn.LocalAddr().String()
}

// Close implements Conn.
func (u *UDPConn) Close() error {
	return u.conn.Close()
}
